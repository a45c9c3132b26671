package utils

import (
	"crypto/rand"
	"fmt"
)

type Guid []byte

func NewGuid() Guid {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return b
	}
	// version 4, variant 10
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return b
}

func (b Guid) String() string {
	bts := []byte(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", bts[0:4], bts[4:6], bts[6:8], bts[8:10], bts[10:16])
}
