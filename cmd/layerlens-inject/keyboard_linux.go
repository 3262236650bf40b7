//go:build linux

package main

import "github.com/bendahl/uinput"

const uinputPath = "/dev/uinput"

func openKeyboard() (keyboard, error) {
	return uinput.CreateKeyboard(uinputPath, []byte("layerlens-inject"))
}
