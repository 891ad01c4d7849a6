// Package biometric implements the container codec for biometric artifacts.
// A container bundles multiple biometric sub-records (fingerprints, iris
// scans, face captures) in one CBOR document so a partial resubmission can
// be merged against the stored container without losing modalities.
package biometric

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Format is the format code a payload descriptor declares for container
// documents; artifact storage IDs for containers end with "." + Format.
const Format = "cbor"

// SubRecord is one biometric capture inside a container.
type SubRecord struct {
	// Modality identifies the capture (e.g. "finger-left-index",
	// "iris-right", "face"). Unique within a container.
	Modality string `cbor:"modality"`
	Quality  int    `cbor:"quality"`
	Data     []byte `cbor:"data"`
}

// Container is the decoded artifact.
type Container struct {
	Version int         `cbor:"version"`
	Records []SubRecord `cbor:"records"`
}

// Codec validates, extracts, and merges containers. Stateless.
type Codec struct{}

func NewCodec() Codec { return Codec{} }

// Validate checks that data is a well-formed container.
func (Codec) Validate(data []byte) error {
	c, err := decode(data)
	if err != nil {
		return err
	}
	if c.Version < 1 {
		return fmt.Errorf("container version %d is not supported", c.Version)
	}
	if len(c.Records) == 0 {
		return fmt.Errorf("container has no sub-records")
	}
	seen := make(map[string]bool, len(c.Records))
	for i, rec := range c.Records {
		if rec.Modality == "" {
			return fmt.Errorf("sub-record %d has no modality", i)
		}
		if seen[rec.Modality] {
			return fmt.Errorf("duplicate modality %q", rec.Modality)
		}
		seen[rec.Modality] = true
		if len(rec.Data) == 0 {
			return fmt.Errorf("sub-record %q has no data", rec.Modality)
		}
	}
	return nil
}

// Extract returns the structured sub-records of a container.
func (Codec) Extract(data []byte) ([]SubRecord, error) {
	c, err := decode(data)
	if err != nil {
		return nil, err
	}
	return c.Records, nil
}

// Merge applies newData over the given stored sub-records: modalities in
// newData replace their stored counterparts, stored modalities absent from
// newData are retained. Container-level metadata comes from newData.
func (Codec) Merge(stored []SubRecord, newData []byte) ([]byte, error) {
	c, err := decode(newData)
	if err != nil {
		return nil, err
	}
	submitted := make(map[string]bool, len(c.Records))
	for _, rec := range c.Records {
		submitted[rec.Modality] = true
	}
	for _, rec := range stored {
		if !submitted[rec.Modality] {
			c.Records = append(c.Records, rec)
		}
	}
	out, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode container: %w", err)
	}
	return out, nil
}

func decode(data []byte) (Container, error) {
	var c Container
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Container{}, fmt.Errorf("decode container: %w", err)
	}
	return c, nil
}

// Encode builds container bytes. Used by provisioning tools and tests.
func Encode(c Container) ([]byte, error) {
	out, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode container: %w", err)
	}
	return out, nil
}
