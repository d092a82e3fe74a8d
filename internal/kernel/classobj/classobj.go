// Package classobj implements the kernel's object/class runtime: a
// reflective single-inheritance class system used by every other
// subsystem to publish typed, dispatchable instances (drivers,
// filesystems, inodes, IOChannels).
//
// Go has no linker section to walk at boot, so "register every class
// found in a dedicated section" becomes an explicit Register call: a
// mutex-protected map keyed by name, populated by package init()
// functions, one per subclass.
package classobj

import (
	"fmt"
	"sync"
)

// Any is the root interface every long-lived kernel entity implements.
type Any interface {
	ClassOf() *Class
}

// Class is a class descriptor: name, superclass, and whatever identity
// a subclass wants exposed for reflection. There is no vtable struct
// here — Go subclasses embed their superclass struct and override
// methods by shadowing them; super-dispatch is an ordinary call to the
// embedded value's method, not a vtable slot comparison.
type Class struct {
	Name  string
	Super *Class
}

// InstanceOf reports whether c is x's class or an ancestor of it.
// InstanceOf(x, ClassOf(x)) always holds.
func InstanceOf(x Any, c *Class) bool {
	if x == nil || c == nil {
		return false
	}
	for cur := x.ClassOf(); cur != nil; cur = cur.Super {
		if cur == c {
			return true
		}
	}
	return false
}

// registry is the boot-time class catalog. A duplicate Register or a
// Class with an empty Name is the Go port's "uninitialized class
// referenced at boot" fatal condition; Register panics rather than
// silently overwriting, since a duplicate almost always means two
// packages picked the same name by accident.
type registry struct {
	mu      sync.Mutex
	classes map[string]*Class
}

var global = &registry{classes: make(map[string]*Class)}

// Register records c in the global class catalog. It panics on a
// duplicate name or a Class with an empty Name: a malformed class
// entry is a boot-time fatal condition, not a recoverable error.
func Register(c *Class) *Class {
	global.mu.Lock()
	defer global.mu.Unlock()

	if c.Name == "" {
		panic("classobj: Register called with empty class name")
	}
	if existing, ok := global.classes[c.Name]; ok {
		panic(fmt.Sprintf("classobj: class %q already registered (%p != %p)", c.Name, existing, c))
	}
	global.classes[c.Name] = c
	return c
}

// Lookup returns the registered class named name, or nil.
func Lookup(name string) *Class {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.classes[name]
}

// All returns every registered class name, for diagnostics.
func All() []string {
	global.mu.Lock()
	defer global.mu.Unlock()
	names := make([]string, 0, len(global.classes))
	for n := range global.classes {
		names = append(names, n)
	}
	return names
}
