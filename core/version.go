package core

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultVersion is the protocol version spoken by this module.
var DefaultVersion Version = [2]uint16{1, 0}

// Version define the version of protocol.
// It includes major and minor version.
type Version [2]uint16

// Major returns major version.
func (p Version) Major() uint16 {
	return p[0]
}

// Minor returns minor version.
func (p Version) Minor() uint16 {
	return p[1]
}

// Equals returns true if versions are same.
func (p Version) Equals(version Version) bool {
	return p.Major() == version.Major() && p.Minor() == version.Minor()
}

// GreaterThan returns true if current version is greater than target.
func (p Version) GreaterThan(version Version) bool {
	if p[0] == version[0] {
		return p[1] > version[1]
	}
	return p[0] > version[0]
}

// LessThan returns true if current version is less than target.
func (p Version) LessThan(version Version) bool {
	if p[0] == version[0] {
		return p[1] < version[1]
	}
	return p[0] < version[0]
}

// Negotiate returns the version both sides can speak.
// Peers must share a major version; the agreed minor is the lower of the two.
func (p Version) Negotiate(proposed Version) (agreed Version, ok bool) {
	if p.Major() != proposed.Major() {
		return
	}
	if proposed.LessThan(p) {
		return proposed, true
	}
	return p, true
}

func (p Version) String() string {
	b := strings.Builder{}
	b.WriteString(strconv.Itoa(int(p[0])))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(p[1])))
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Version) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Version) UnmarshalText(text []byte) (err error) {
	*p, err = ParseVersion(string(text))
	return
}

// ParseVersion parses a "major.minor" string.
func ParseVersion(s string) (v Version, err error) {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		err = errors.Errorf("invalid version %q", s)
		return
	}
	major, err := strconv.ParseUint(s[:idx], 10, 16)
	if err != nil {
		err = errors.Wrapf(err, "invalid version %q", s)
		return
	}
	minor, err := strconv.ParseUint(s[idx+1:], 10, 16)
	if err != nil {
		err = errors.Wrapf(err, "invalid version %q", s)
		return
	}
	v = NewVersion(uint16(major), uint16(minor))
	return
}

// NewVersion creates a new Version from major and minor.
func NewVersion(major, minor uint16) Version {
	return Version{
		major, minor,
	}
}
