package artifact_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/biometric"
	"idregistry/internal/blob"
	"idregistry/internal/identity"
	"idregistry/internal/identity/artifact"
	"idregistry/internal/identity/jsontree"
	"idregistry/internal/security"
	pkgerrors "idregistry/pkg/errors"
	"idregistry/pkg/requestcontext"
)

const (
	hashOnly = "abcdef0123"
	refID    = "ref-1"
)

func testContext() context.Context {
	ctx := requestcontext.WithActor(context.Background(), "registry-processor")
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func newIngestor(blobs blob.Store) *artifact.Ingestor {
	return artifact.NewIngestor(blobs, biometric.NewCodec(), security.Hasher{},
		[]string{"individualBiometrics"})
}

func payloadTree(t *testing.T, raw string) *jsontree.Value {
	t.Helper()
	v, err := jsontree.Decode([]byte(raw))
	require.NoError(t, err)
	return v
}

func containerB64(t *testing.T, records ...biometric.SubRecord) string {
	t.Helper()
	data, err := biometric.Encode(biometric.Container{Version: 1, Records: records})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestIngestDemographicDocument(t *testing.T) {
	blobs := blob.NewMemoryStore()
	ing := newIngestor(blobs)
	payload := payloadTree(t, `{"proofOfAddress":{"value":"address-scan","format":"pdf","type":"RENTAL"}}`)
	docs := []identity.Document{{
		Category: "proofOfAddress",
		Value:    base64.StdEncoding.EncodeToString([]byte("%PDF-fake")),
	}}

	res, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, false)
	require.NoError(t, err)

	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, "proofOfAddress", doc.Category)
	assert.Equal(t, "RENTAL", doc.TypeCode)
	assert.Equal(t, "pdf", doc.Format)
	assert.Regexp(t, `\.pdf$`, doc.StorageID)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Equal(t, "registry-processor", doc.CreatedBy)

	stored, err := blobs.Get(context.Background(), blob.NamespaceDemographics, blob.Key(hashOnly, doc.StorageID))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), stored)

	require.Len(t, res.DocumentHistory, 1)
	assert.Equal(t, doc.StorageID, res.DocumentHistory[0].StorageID)
	assert.Empty(t, res.Biometrics)
}

func TestIngestSkipsCategoriesAbsentFromPayload(t *testing.T) {
	blobs := blob.NewMemoryStore()
	ing := newIngestor(blobs)
	payload := payloadTree(t, `{"fullName":[{"language":"eng","value":"Ann"}]}`)
	docs := []identity.Document{{
		Category: "proofOfAddress",
		Value:    base64.StdEncoding.EncodeToString([]byte("scan")),
	}}

	res, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, false)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Equal(t, 0, blobs.Len())
}

func TestIngestBiometricContainer(t *testing.T) {
	blobs := blob.NewMemoryStore()
	ing := newIngestor(blobs)
	payload := payloadTree(t, `{"individualBiometrics":{"value":"bio","format":"cbor"}}`)
	docs := []identity.Document{{
		Category: "individualBiometrics",
		Value:    containerB64(t, biometric.SubRecord{Modality: "face", Data: []byte{0x01}}),
	}}

	res, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, false)
	require.NoError(t, err)

	require.Len(t, res.Biometrics, 1)
	bio := res.Biometrics[0]
	assert.Equal(t, "individualBiometrics", bio.Category)
	assert.Regexp(t, `\.cbor$`, bio.StorageID)

	_, err = blobs.Get(context.Background(), blob.NamespaceBiometrics, blob.Key(hashOnly, bio.StorageID))
	assert.NoError(t, err)
	require.Len(t, res.BiometricHistory, 1)
}

func TestIngestRejectsMalformedContainer(t *testing.T) {
	ing := newIngestor(blob.NewMemoryStore())
	payload := payloadTree(t, `{"individualBiometrics":{"value":"bio","format":"cbor"}}`)
	docs := []identity.Document{{
		Category: "individualBiometrics",
		Value:    base64.StdEncoding.EncodeToString([]byte("not a container")),
	}}

	_, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, false)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidInput, pkgerrors.CodeOf(err))

	var re *pkgerrors.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "documents/0/value", re.Path)
}

func TestIngestRejectsBadBase64(t *testing.T) {
	ing := newIngestor(blob.NewMemoryStore())
	payload := payloadTree(t, `{"proofOfAddress":{"value":"scan","format":"pdf"}}`)
	docs := []identity.Document{{Category: "proofOfAddress", Value: "!!! not base64 !!!"}}

	_, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, false)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidInput, pkgerrors.CodeOf(err))
}

func TestIngestDraftSuppressesHistory(t *testing.T) {
	ing := newIngestor(blob.NewMemoryStore())
	payload := payloadTree(t, `{"proofOfAddress":{"value":"scan","format":"pdf"}}`)
	docs := []identity.Document{{
		Category: "proofOfAddress",
		Value:    base64.StdEncoding.EncodeToString([]byte("scan")),
	}}

	res, err := ing.Ingest(testContext(), hashOnly, payload, docs, refID, true)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
	assert.Empty(t, res.DocumentHistory)
}

func TestMergeIntoRecordUpserts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &identity.Record{
		RefID: refID,
		Documents: []identity.DocumentArtifact{{
			RecordRefID: refID, Category: "proofOfAddress", StorageID: "old.pdf",
			ContentHash: "old-hash", CreatedBy: "creator",
		}},
	}
	res := artifact.Result{
		Documents: []identity.DocumentArtifact{
			{RecordRefID: refID, Category: "proofOfAddress", StorageID: "new.pdf",
				ContentHash: "new-hash", CreatedAt: now},
			{RecordRefID: refID, Category: "proofOfIdentity", StorageID: "id.pdf",
				ContentHash: "id-hash", CreatedAt: now},
		},
	}

	artifact.MergeIntoRecord(rec, res, "registry-processor")

	require.Len(t, rec.Documents, 2, "matched category updated in place, new category appended")
	assert.Equal(t, "new.pdf", rec.Documents[0].StorageID)
	assert.Equal(t, "new-hash", rec.Documents[0].ContentHash)
	assert.Equal(t, "creator", rec.Documents[0].CreatedBy, "creation audit survives upsert")
	assert.Equal(t, "registry-processor", rec.Documents[0].UpdatedBy)
	assert.Equal(t, "proofOfIdentity", rec.Documents[1].Category)
}

func TestResyncContainersMergesStoredModalities(t *testing.T) {
	ctx := testContext()
	blobs := blob.NewMemoryStore()
	ing := newIngestor(blobs)

	storedContainer, err := biometric.Encode(biometric.Container{
		Version: 1,
		Records: []biometric.SubRecord{
			{Modality: "face", Data: []byte("old-face")},
			{Modality: "iris-left", Data: []byte("old-iris")},
		},
	})
	require.NoError(t, err)
	storageID := "stored-artifact.cbor"
	require.NoError(t, blobs.Put(ctx, blob.NamespaceBiometrics, blob.Key(hashOnly, storageID), storedContainer))

	rec := &identity.Record{
		RefID: refID,
		Biometrics: []identity.BiometricArtifact{{
			RecordRefID: refID, Category: "individualBiometrics", StorageID: storageID,
		}},
	}
	payload := payloadTree(t, `{"individualBiometrics":{"value":"bio","format":"cbor"}}`)
	docs := []identity.Document{{
		Category: "individualBiometrics",
		Value:    containerB64(t, biometric.SubRecord{Modality: "face", Data: []byte("new-face")}),
	}}

	require.NoError(t, ing.ResyncContainers(ctx, hashOnly, rec, payload, docs))

	merged, err := base64.StdEncoding.DecodeString(docs[0].Value)
	require.NoError(t, err)
	records, err := biometric.NewCodec().Extract(merged)
	require.NoError(t, err)
	require.Len(t, records, 2, "stored modality absent from the submission is carried over")

	byModality := map[string][]byte{}
	for _, r := range records {
		byModality[r.Modality] = r.Data
	}
	assert.Equal(t, []byte("new-face"), byModality["face"])
	assert.Equal(t, []byte("old-iris"), byModality["iris-left"])
}
