package testutil

import (
	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
)

// FaultyMetadataStore wraps a MetadataStore and fails writes on demand.
type FaultyMetadataStore struct {
	chasm.MetadataStore

	// FolderWriteErr, when set, is returned by WriteFolderRecord instead of writing.
	FolderWriteErr error
	// CheckoutWriteErr, when set, is returned by WriteCheckoutRecord instead of writing.
	CheckoutWriteErr error
}

// NewFaultyMetadataStore wraps inner.
func NewFaultyMetadataStore(inner chasm.MetadataStore) *FaultyMetadataStore {
	return &FaultyMetadataStore{MetadataStore: inner}
}

func (s *FaultyMetadataStore) WriteFolderRecord(dir string, rec *chasm.FolderRecord) error {
	if s.FolderWriteErr != nil {
		return s.FolderWriteErr
	}
	return s.MetadataStore.WriteFolderRecord(dir, rec)
}

func (s *FaultyMetadataStore) WriteCheckoutRecord(dir string, rec *chasm.CheckoutRecord) error {
	if s.CheckoutWriteErr != nil {
		return s.CheckoutWriteErr
	}
	return s.MetadataStore.WriteCheckoutRecord(dir, rec)
}
