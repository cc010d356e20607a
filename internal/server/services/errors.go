package services

import (
	"errors"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// storeError passes tagged errors through and turns anything else coming
// out of the store into ErrStoreUnavailable, keeping the raw error as cause.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var tagged *common.Error
	if errors.As(err, &tagged) {
		return err
	}
	return common.Wrap(common.ErrStoreUnavailable, err)
}

// notFoundAs maps common.ErrorNotFound to sentinel and everything else
// through storeError.
func notFoundAs(err error, sentinel *common.Error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.Wrap(sentinel, err)
	}
	return storeError(err)
}
