package ptr_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuanvumaihuynh/product-catalog/pkg/ptr"
)

func TestDeref(t *testing.T) {
	assert.Equal(t, 3, ptr.Deref(ptr.New(3)))
	assert.Equal(t, "", ptr.Deref[string](nil))
}

func TestMap(t *testing.T) {
	assert.Equal(t, ptr.New("7"), ptr.Map(ptr.New(7), strconv.Itoa))
	assert.Nil(t, ptr.Map[int, string](nil, strconv.Itoa))
}
