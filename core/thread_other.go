//go:build !linux

package core

func currentThreadID() int64 {
	return -1
}
