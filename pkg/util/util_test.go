package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hello", TruncateString("hello world", 5))
	// 按 rune 截断，不会把多字节字符切成半个
	assert.Equal(t, "你好", TruncateString("你好世界", 2))
	assert.Equal(t, "", TruncateString("abc", 0))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret123")
	assert.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("wrong", hash))
}
