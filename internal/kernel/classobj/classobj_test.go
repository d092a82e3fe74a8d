package classobj

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	class *Class
}

func (w *widget) ClassOf() *Class { return w.class }

func TestInstanceOfAncestry(t *testing.T) {
	root := &Class{Name: "classobj_test.Any"}
	mid := &Class{Name: "classobj_test.Mid", Super: root}
	leaf := &Class{Name: "classobj_test.Leaf", Super: mid}

	w := &widget{class: leaf}
	require.True(t, InstanceOf(w, leaf))
	require.True(t, InstanceOf(w, mid))
	require.True(t, InstanceOf(w, root))

	other := &Class{Name: "classobj_test.Other"}
	require.False(t, InstanceOf(w, other))
	require.False(t, InstanceOf(nil, root))
}

func TestRegisterAndLookup(t *testing.T) {
	c := &Class{Name: "classobj_test.Registered"}
	Register(c)
	require.Same(t, c, Lookup("classobj_test.Registered"))
	require.Nil(t, Lookup("classobj_test.DoesNotExist"))

	require.Panics(t, func() { Register(c) })
	require.Panics(t, func() { Register(&Class{}) })
}
