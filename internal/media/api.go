package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a pion API that knows the frame codec, runs the default
// interceptors (NACK, RTCP reports) and logs through loggerFactory. Loopback
// candidates are only gathered when includeLoopback is set.
func NewAPI(loggerFactory logging.LoggerFactory, includeLoopback bool) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: Capability(),
		PayloadType:        PayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	s := webrtc.SettingEngine{}
	if loggerFactory != nil {
		s.LoggerFactory = loggerFactory
	}
	s.SetIncludeLoopbackCandidate(includeLoopback)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(s),
	), nil
}

// NewVideoTrack creates the local track frames are written to.
func NewVideoTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(Capability(), "video", "balltrack")
}
