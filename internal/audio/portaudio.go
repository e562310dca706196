//go:build portaudio

package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

func initBackend() error {
	return portaudio.Initialize()
}

func terminateBackend() error {
	return portaudio.Terminate()
}

func listDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return toDevices(infos), nil
}

func toDevices(infos []*portaudio.DeviceInfo) []Device {
	out := make([]Device, 0, len(infos))
	for i, d := range infos {
		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out
}

type streamSource struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *streamSource) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

func (s *streamSource) Close() error {
	_ = s.stream.Stop()
	return s.stream.Close()
}

func openSource(cfg SessionConfig) (frameSource, error) {
	var (
		dev *portaudio.DeviceInfo
		err error
	)
	if cfg.DeviceIndex < 0 && cfg.DeviceName == "" {
		dev, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
	} else {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		d, err := pickDevice(toDevices(infos), cfg.DeviceIndex, cfg.DeviceName)
		if err != nil {
			return nil, err
		}
		dev = infos[d.Index]
	}

	buf := make([]float32, cfg.ChunkSize)

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = len(buf)

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &streamSource{stream: stream, buf: buf}, nil
}
