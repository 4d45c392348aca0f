//go:build cgo

package avengine

import "github.com/asticode/go-astiav"

// nativePacket and nativeFrame hold the engine-specific resource backing a
// Packet/Frame: an *astiav.Packet/*astiav.Frame for the ffmpeg engine, or a
// fakePacketNative/fakeFrameNative for tests. They are opaque to every
// package above avengine.
type nativePacket any
type nativeFrame any

func releaseNativePacket(n nativePacket) {
	switch v := n.(type) {
	case *astiav.Packet:
		v.Free()
	case *fakePacketNative:
		v.release()
	}
}

func releaseNativeFrame(n nativeFrame) {
	switch v := n.(type) {
	case *astiav.Frame:
		v.Free()
	case *fakeFrameNative:
		v.release()
	}
}
