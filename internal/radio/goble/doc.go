// Package goble implements engine.Radio on top of github.com/go-ble/ble.
package goble
