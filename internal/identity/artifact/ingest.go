// Package artifact ingests submitted documents and biometric containers:
// classify by category, decode, validate, store the bytes, and record the
// artifact rows plus their history snapshots.
package artifact

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"idregistry/internal/biometric"
	"idregistry/internal/blob"
	"idregistry/internal/identity"
	"idregistry/internal/identity/jsontree"
	"idregistry/internal/identity/shard"
	"idregistry/internal/security"
	pkgerrors "idregistry/pkg/errors"
	"idregistry/pkg/requestcontext"
)

// Payload descriptor attributes. A document's category key in the canonical
// payload holds an object describing the artifact.
const (
	attrName   = "value"
	attrFormat = "format"
	attrType   = "type"
)

// ContainerCodec is the biometric container collaborator.
type ContainerCodec interface {
	Validate(data []byte) error
	Extract(data []byte) ([]biometric.SubRecord, error)
	Merge(stored []biometric.SubRecord, newData []byte) ([]byte, error)
}

// Result collects everything one ingestion produced. History snapshots are
// persisted by the orchestrator inside the surrounding unit of work.
type Result struct {
	Documents        []identity.DocumentArtifact
	Biometrics       []identity.BiometricArtifact
	DocumentHistory  []identity.DocumentHistory
	BiometricHistory []identity.BiometricHistory
}

// Ingestor classifies and stores submitted artifacts.
type Ingestor struct {
	blobs         blob.Store
	codec         ContainerCodec
	hasher        security.Hasher
	bioCategories map[string]bool
}

func NewIngestor(blobs blob.Store, codec ContainerCodec, hasher security.Hasher, bioCategories []string) *Ingestor {
	set := make(map[string]bool, len(bioCategories))
	for _, c := range bioCategories {
		set[c] = true
	}
	return &Ingestor{blobs: blobs, codec: codec, hasher: hasher, bioCategories: set}
}

// Ingest processes each submitted document whose category exists as a key
// in the canonical payload; other categories are silently skipped. isDraft
// suppresses history snapshots.
func (ing *Ingestor) Ingest(ctx context.Context, hashOnly string, payload *jsontree.Value, docs []identity.Document, recordRefID string, isDraft bool) (Result, error) {
	var res Result
	for i, doc := range docs {
		descriptor, ok := payload.Get(doc.Category)
		if !ok {
			continue
		}
		if ing.bioCategories[doc.Category] {
			if err := ing.ingestBiometric(ctx, &res, hashOnly, descriptor, doc, recordRefID, isDraft, i); err != nil {
				return Result{}, err
			}
			continue
		}
		if err := ing.ingestDemographic(ctx, &res, hashOnly, descriptor, doc, recordRefID, isDraft, i); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (ing *Ingestor) ingestBiometric(ctx context.Context, res *Result, hashOnly string, descriptor *jsontree.Value, doc identity.Document, recordRefID string, isDraft bool, index int) error {
	name, format, _, err := descriptorAttrs(descriptor, doc.Category)
	if err != nil {
		return err
	}
	data, err := decodeValue(doc.Value, index)
	if err != nil {
		return err
	}
	if err := ing.codec.Validate(data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "malformed biometric container", err).
			WithPath(docPath(index))
	}
	artifactID := newArtifactID(name, format, requestcontext.Now(ctx))
	if err := ing.blobs.Put(ctx, blob.NamespaceBiometrics, blob.Key(hashOnly, artifactID), data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageAccess, "store biometric artifact", err)
	}

	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx)
	contentHash := ing.hasher.Hash(data)
	res.Biometrics = append(res.Biometrics, identity.BiometricArtifact{
		RecordRefID: recordRefID,
		StorageID:   artifactID,
		Category:    doc.Category,
		Name:        name,
		ContentHash: contentHash,
		CreatedBy:   actor,
		CreatedAt:   now,
	})
	if !isDraft {
		res.BiometricHistory = append(res.BiometricHistory, identity.BiometricHistory{
			RecordRefID: recordRefID,
			At:          now,
			StorageID:   artifactID,
			Category:    doc.Category,
			Name:        name,
			ContentHash: contentHash,
			CreatedBy:   actor,
			CreatedAt:   now,
		})
	}
	return nil
}

func (ing *Ingestor) ingestDemographic(ctx context.Context, res *Result, hashOnly string, descriptor *jsontree.Value, doc identity.Document, recordRefID string, isDraft bool, index int) error {
	name, format, typeCode, err := descriptorAttrs(descriptor, doc.Category)
	if err != nil {
		return err
	}
	data, err := decodeValue(doc.Value, index)
	if err != nil {
		return err
	}
	artifactID := newArtifactID(name, format, requestcontext.Now(ctx))
	if err := ing.blobs.Put(ctx, blob.NamespaceDemographics, blob.Key(hashOnly, artifactID), data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageAccess, "store demographic artifact", err)
	}

	actor, now := requestcontext.Actor(ctx), requestcontext.Now(ctx)
	contentHash := ing.hasher.Hash(data)
	res.Documents = append(res.Documents, identity.DocumentArtifact{
		RecordRefID: recordRefID,
		Category:    doc.Category,
		TypeCode:    typeCode,
		StorageID:   artifactID,
		Name:        name,
		Format:      format,
		ContentHash: contentHash,
		CreatedBy:   actor,
		CreatedAt:   now,
	})
	if !isDraft {
		res.DocumentHistory = append(res.DocumentHistory, identity.DocumentHistory{
			RecordRefID: recordRefID,
			At:          now,
			Category:    doc.Category,
			TypeCode:    typeCode,
			StorageID:   artifactID,
			Name:        name,
			Format:      format,
			ContentHash: contentHash,
			CreatedBy:   actor,
			CreatedAt:   now,
		})
	}
	return nil
}

// ResyncContainers keeps container-level metadata consistent across partial
// biometric updates: for each existing biometric artifact whose category is
// resubmitted and whose on-record format is the container format, the
// stored container's sub-records are merged under the newly submitted
// bytes before ingestion re-stores them.
func (ing *Ingestor) ResyncContainers(ctx context.Context, hashOnly string, rec *identity.Record, payload *jsontree.Value, docs []identity.Document) error {
	for _, bio := range rec.Biometrics {
		for j := range docs {
			if docs[j].Category != bio.Category {
				continue
			}
			descriptor, ok := payload.Get(bio.Category)
			if !ok {
				continue
			}
			format, _ := descriptor.Get(attrFormat)
			if format == nil || !strings.EqualFold(format.AsString(), biometric.Format) ||
				!strings.HasSuffix(bio.StorageID, "."+biometric.Format) {
				continue
			}

			stored, err := ing.blobs.Get(ctx, blob.NamespaceBiometrics, blob.Key(hashOnly, bio.StorageID))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorageAccess, "fetch stored biometric artifact", err)
			}
			subRecords, err := ing.codec.Extract(stored)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeProcessingFailed, "stored biometric container is corrupt", err).
					WithPath(docPath(j))
			}
			newData, err := decodeValue(docs[j].Value, j)
			if err != nil {
				return err
			}
			merged, err := ing.codec.Merge(subRecords, newData)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "malformed biometric container", err).
					WithPath(docPath(j))
			}
			docs[j].Value = base64.StdEncoding.EncodeToString(merged)
		}
	}
	return nil
}

// MergeIntoRecord upserts freshly ingested artifacts into the record's
// lists: a category match updates the existing artifact in place, no match
// appends. Key-based upsert, not the payload tree merge.
func MergeIntoRecord(rec *identity.Record, res Result, actor string) {
	for _, doc := range res.Documents {
		updated := false
		for i := range rec.Documents {
			if rec.Documents[i].Category != doc.Category {
				continue
			}
			rec.Documents[i].StorageID = doc.StorageID
			rec.Documents[i].Name = doc.Name
			rec.Documents[i].TypeCode = doc.TypeCode
			rec.Documents[i].Format = doc.Format
			rec.Documents[i].ContentHash = doc.ContentHash
			rec.Documents[i].UpdatedBy = actor
			rec.Documents[i].UpdatedAt = doc.CreatedAt
			updated = true
		}
		if !updated {
			rec.Documents = append(rec.Documents, doc)
		}
	}
	for _, bio := range res.Biometrics {
		updated := false
		for i := range rec.Biometrics {
			if rec.Biometrics[i].Category != bio.Category {
				continue
			}
			rec.Biometrics[i].StorageID = bio.StorageID
			rec.Biometrics[i].Name = bio.Name
			rec.Biometrics[i].ContentHash = bio.ContentHash
			rec.Biometrics[i].UpdatedBy = actor
			rec.Biometrics[i].UpdatedAt = bio.CreatedAt
			updated = true
		}
		if !updated {
			rec.Biometrics = append(rec.Biometrics, bio)
		}
	}
}

func descriptorAttrs(descriptor *jsontree.Value, category string) (name, format, typeCode string, err error) {
	if descriptor.Kind() != jsontree.Object {
		return "", "", "", pkgerrors.New(pkgerrors.CodeInvalidInput, "payload descriptor is not an object").
			WithPath(category)
	}
	nameVal, ok := descriptor.Get(attrName)
	if !ok || nameVal.Kind() != jsontree.String {
		return "", "", "", pkgerrors.New(pkgerrors.CodeInvalidInput, "payload descriptor has no file name").
			WithPath(category + "/" + attrName)
	}
	formatVal, ok := descriptor.Get(attrFormat)
	if !ok || formatVal.Kind() != jsontree.String {
		return "", "", "", pkgerrors.New(pkgerrors.CodeInvalidInput, "payload descriptor has no format").
			WithPath(category + "/" + attrFormat)
	}
	if typeVal, ok := descriptor.Get(attrType); ok && typeVal.Kind() == jsontree.String {
		typeCode = typeVal.AsString()
	}
	return nameVal.AsString(), formatVal.AsString(), typeCode, nil
}

// newArtifactID derives a deterministic storage ID from the declared file
// name plus the ingestion timestamp, suffixed with the declared format.
func newArtifactID(name, format string, now time.Time) string {
	seed := name + shard.Separator + now.Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String() + "." + format
}

func decodeValue(value string, index int) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(value); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "document value is not valid base64", err).
			WithPath(docPath(index))
	}
	return data, nil
}

func docPath(index int) string {
	return fmt.Sprintf("documents/%d/value", index)
}
