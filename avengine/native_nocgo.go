//go:build !cgo

package avengine

// nativePacket and nativeFrame hold the engine-specific resource backing a
// Packet/Frame. Without cgo only the fake engine can produce one, so this
// build only ever sees fakePacketNative/fakeFrameNative.
type nativePacket any
type nativeFrame any

func releaseNativePacket(n nativePacket) {
	if v, ok := n.(*fakePacketNative); ok {
		v.release()
	}
}

func releaseNativeFrame(n nativeFrame) {
	if v, ok := n.(*fakeFrameNative); ok {
		v.release()
	}
}
