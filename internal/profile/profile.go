package profile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

// Handler kinds a profile entry can bind.
const (
	HandlerEcho     = "echo"
	HandlerStatic   = "static"
	HandlerStatus   = "status"
	HandlerVersion  = "version"
	HandlerRegister = "register"
)

// Request kinds. Register entries require one; elsewhere it is a label.
const (
	KindSet = "set"
	KindGet = "get"
)

var ErrInvalidProfile = errors.New("profile: invalid")

// Profile declares the tags a simulated device answers.
type Profile struct {
	Name string      `toml:"name"`
	Tags []TagConfig `toml:"tags"`
}

type TagConfig struct {
	Tag     int    `toml:"tag"`
	Name    string `toml:"name"`
	Kind    string `toml:"kind"`
	Handler string `toml:"handler"`
	// Value is the hex-encoded reply for static handlers.
	Value string `toml:"value"`
	// Slot names the register shared by set and get entries.
	Slot string `toml:"slot"`
}

func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile load failed (%s): %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("profile parse failed: %w", err)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "device"
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) Validate() error {
	seen := make(map[int]int, len(p.Tags))
	for i, tc := range p.Tags {
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("tag[%d] invalid: %w", i, err)
		}
		if first, ok := seen[tc.Tag]; ok {
			return fmt.Errorf("tag[%d] invalid: %w: tag 0x%02x already declared by tag[%d]", i, ErrInvalidProfile, tc.Tag, first)
		}
		seen[tc.Tag] = i
	}
	return nil
}

func (tc TagConfig) Validate() error {
	if tc.Tag < 0 || tc.Tag > 0xFF {
		return fmt.Errorf("%w: tag %d out of byte range", ErrInvalidProfile, tc.Tag)
	}
	if byte(tc.Tag) == protocol.TagNested {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, protocol.ErrReservedTag)
	}
	switch tc.Kind {
	case "", KindSet, KindGet:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProfile, tc.Kind)
	}

	switch tc.Handler {
	case HandlerEcho, HandlerStatus, HandlerVersion:
		return nil
	case HandlerStatic:
		value, err := hex.DecodeString(tc.Value)
		if err != nil {
			return fmt.Errorf("%w: value: %w", ErrInvalidProfile, err)
		}
		if len(value) > protocol.MaxValueLen {
			return fmt.Errorf("%w: %w", ErrInvalidProfile, protocol.ErrValueTooLarge)
		}
		return nil
	case HandlerRegister:
		if strings.TrimSpace(tc.Slot) == "" {
			return fmt.Errorf("%w: register requires slot", ErrInvalidProfile)
		}
		if tc.Kind == "" {
			return fmt.Errorf("%w: register requires kind set or get", ErrInvalidProfile)
		}
		return nil
	case "":
		return fmt.Errorf("%w: handler is required", ErrInvalidProfile)
	default:
		return fmt.Errorf("%w: unknown handler %q", ErrInvalidProfile, tc.Handler)
	}
}

// Default is the profile served when none is configured.
func Default() Profile {
	return Profile{
		Name: "device",
		Tags: []TagConfig{
			{Tag: 0x01, Name: "ping", Handler: HandlerStatus},
			{Tag: 0x02, Name: "version", Kind: KindGet, Handler: HandlerVersion},
			{Tag: 0x03, Name: "echo", Handler: HandlerEcho},
		},
	}
}
