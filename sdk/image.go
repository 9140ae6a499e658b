package sdk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrInvalidReference is returned when a registry URI can not be parsed.
	ErrInvalidReference = errors.New("invalid image reference")

	// ErrNoRegion is returned when the region can not be derived from the
	// registry host.
	ErrNoRegion = errors.New("unable to derive region from registry host")
)

var imageRefPattern = regexp.MustCompile(`^(.+)/([^@:]+)(?:[@:](.+))?$`)

// ImageRef points at an image in a remote registry, for instance
// 1253812538.dkr.ecr.us-east-1.amazonaws.com/abc_x1:mytag.
type ImageRef struct {
	Host string
	Name string
	// Tag is whatever followed the repository name, so for digest references
	// it holds the full "sha256:..." string.
	Tag    string
	Digest digest.Digest
	Region string
}

// ParseImageRef parses host/name[:tag] and host/name@sha256:hex references.
func ParseImageRef(uri string) (ImageRef, error) {
	m := imageRefPattern.FindStringSubmatch(uri)
	if m == nil {
		return ImageRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, uri)
	}

	ref := ImageRef{
		Host: m[1],
		Name: m[2],
		Tag:  m[3],
	}

	if ref.Tag != "" && uri[len(m[1])+1+len(m[2])] == '@' {
		ref.Digest = digest.Digest(ref.Tag)
	}

	region, err := RegionFromHost(ref.Host)
	if err != nil {
		return ImageRef{}, err
	}
	ref.Region = region

	return ref, nil
}

// NewImageRef builds a tagged reference from its parts.
func NewImageRef(host, name, tag string) (ImageRef, error) {
	uri := host + "/" + name
	if tag != "" {
		uri += ":" + tag
	}
	return ParseImageRef(uri)
}

// RegionFromHost returns the third-from-last dot separated segment of a
// registry host, e.g. us-east-1 for 1253812538.dkr.ecr.us-east-1.amazonaws.com.
func RegionFromHost(host string) (string, error) {
	parts := strings.Split(host, ".")
	if len(parts) < 3 || parts[len(parts)-3] == "" {
		return "", fmt.Errorf("%w: %q", ErrNoRegion, host)
	}
	return parts[len(parts)-3], nil
}

// Repository returns host/name without tag or digest.
func (r ImageRef) Repository() string {
	return r.Host + "/" + r.Name
}

// WithDigest returns the digest qualified form of the same repository.
func (r ImageRef) WithDigest(d digest.Digest) ImageRef {
	return ImageRef{
		Host:   r.Host,
		Name:   r.Name,
		Tag:    d.String(),
		Digest: d,
		Region: r.Region,
	}
}

func (r ImageRef) String() string {
	switch {
	case r.Digest != "":
		return r.Repository() + "@" + r.Digest.String()
	case r.Tag != "":
		return r.Repository() + ":" + r.Tag
	default:
		return r.Repository()
	}
}
