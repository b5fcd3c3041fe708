package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DeviceKind mirrors MediaDeviceInfo.kind.
type DeviceKind string

const (
	DeviceAudioInput DeviceKind = "audioinput"
	DeviceVideoInput DeviceKind = "videoinput"
)

// Device is one enumerated input device.
type Device struct {
	ID    string     `json:"device_id"`
	Kind  DeviceKind `json:"kind"`
	Label string     `json:"label,omitempty"`
}

// Constraints selects the device classes to request. Basic drops resolution
// and processing hints.
type Constraints struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
	Basic bool `json:"basic"`

	// Ideal video size, ignored when Basic.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Audio processing hints, ignored when Basic.
	EchoCancellation bool `json:"echo_cancellation,omitempty"`
	NoiseSuppression bool `json:"noise_suppression,omitempty"`
}

// Tracks reports which track classes a stream carries.
type Tracks struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

func (t Tracks) Any() bool { return t.Audio || t.Video }

// Stream is a live media handle. Stop releases every track and must be safe
// to call more than once.
type Stream interface {
	Tracks() Tracks
	Stop()
}

// DeviceProvider is the platform media API.
type DeviceProvider interface {
	Enumerate(ctx context.Context) ([]Device, error)
	Request(ctx context.Context, c Constraints) (Stream, error)
}

// MediaError carries a platform error name such as NotAllowedError.
type MediaError struct {
	Name    string
	Message string
}

func (e *MediaError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ClassifyMediaError maps a platform error to a media Kind.
func ClassifyMediaError(err error) Kind {
	var me *MediaError
	if !errors.As(err, &me) {
		return MediaOther
	}
	switch me.Name {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return MediaPermissionDenied
	case "NotReadableError", "TrackStartError", "AbortError":
		return MediaDeviceBusy
	case "NotFoundError", "DevicesNotFoundError":
		return MediaNotFound
	case "OverconstrainedError", "ConstraintNotSatisfiedError":
		return MediaConstraint
	default:
		return MediaOther
	}
}

// Acquisition is the outcome of MediaAcquirer.Acquire. Stream is nil in
// text-only mode.
type Acquisition struct {
	Stream     Stream
	Granted    Tracks
	Devices    []Device
	Advisories []Advisory
}

// TextOnly reports whether no track was granted. It stays true after the
// stream is released.
func (a Acquisition) TextOnly() bool { return !a.Granted.Any() }

// MediaAcquirer requests camera and microphone access on a best-effort basis.
type MediaAcquirer struct {
	provider DeviceProvider
	logger   *zap.Logger
}

func NewMediaAcquirer(provider DeviceProvider, logger *zap.Logger) *MediaAcquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaAcquirer{provider: provider, logger: logger}
}

// Acquire enumerates devices and requests only the classes present. It never
// returns an error; failures become advisories and a text-only acquisition.
func (a *MediaAcquirer) Acquire(ctx context.Context) Acquisition {
	if a.provider == nil {
		return Acquisition{Advisories: []Advisory{NewAdvisory(MediaUnavailable)}}
	}
	devices, err := a.provider.Enumerate(ctx)
	if err != nil {
		kind := ClassifyMediaError(err)
		a.logger.Warn("enumerate devices failed", zap.String("kind", string(kind)), zap.Error(err))
		return Acquisition{Advisories: []Advisory{NewAdvisory(kind)}}
	}

	var hasAudio, hasVideo bool
	for _, d := range devices {
		switch d.Kind {
		case DeviceAudioInput:
			hasAudio = true
		case DeviceVideoInput:
			hasVideo = true
		}
	}
	a.logger.Info("media devices enumerated", zap.Bool("audio", hasAudio), zap.Bool("video", hasVideo))
	if !hasAudio && !hasVideo {
		return Acquisition{Devices: devices, Advisories: []Advisory{NewAdvisory(MediaUnavailable)}}
	}

	want := Constraints{Audio: hasAudio, Video: hasVideo}
	if hasVideo {
		want.Width, want.Height = 1280, 720
	}
	if hasAudio {
		want.EchoCancellation, want.NoiseSuppression = true, true
	}

	stream, err := a.provider.Request(ctx, want)
	if err != nil && ClassifyMediaError(err) == MediaConstraint {
		a.logger.Info("media constraints unsatisfiable, retrying with basic settings", zap.Error(err))
		stream, err = a.provider.Request(ctx, Constraints{Audio: hasAudio, Video: hasVideo, Basic: true})
	}
	if err != nil {
		kind := ClassifyMediaError(err)
		a.logger.Warn("media request failed", zap.String("kind", string(kind)), zap.Error(err))
		return Acquisition{Devices: devices, Advisories: []Advisory{NewAdvisory(kind)}}
	}

	granted := stream.Tracks()
	out := Acquisition{Stream: stream, Granted: granted, Devices: devices}
	switch {
	case !granted.Any():
		stream.Stop()
		out.Stream = nil
		out.Advisories = append(out.Advisories, NewAdvisory(MediaUnavailable))
	case !granted.Video:
		out.Advisories = append(out.Advisories, NewAdvisory(MediaCameraMissing))
	case !granted.Audio:
		out.Advisories = append(out.Advisories, NewAdvisory(MediaMicrophoneMissing))
	}
	return out
}
