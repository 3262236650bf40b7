//go:build !linux

package main

import "errors"

func openKeyboard() (keyboard, error) {
	return nil, errors.New("virtual keyboards need linux uinput")
}
