package tracker

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/model"
)

const trackingKeyPrefix = "pr_tracking_"

// DefaultRetentionSeconds is the sliding TTL applied on every record write:
// three days, the safety net against records leaked by missed terminal events.
const DefaultRetentionSeconds int64 = 3 * 24 * 60 * 60

// Store is the tracking record cache. Get returns nil without error for an
// absent record; callers treat absence as an expected no-op path.
type Store interface {
	Get(key string) (*TrackedPR, error)
	Set(key string, pr *TrackedPR) error
	Delete(key string) error
}

// KV is the slice of the plugin API the store needs.
type KV interface {
	KVGet(key string) ([]byte, *model.AppError)
	KVSetWithExpiry(key string, value []byte, expireInSeconds int64) *model.AppError
	KVDelete(key string) *model.AppError
}

// KVStore keeps tracking records in the plugin KV store. Every write resets
// the expiry window, giving records a sliding TTL.
type KVStore struct {
	api              KV
	retentionSeconds func() int64
}

func NewKVStore(api KV, retentionSeconds func() int64) *KVStore {
	return &KVStore{
		api:              api,
		retentionSeconds: retentionSeconds,
	}
}

func (s *KVStore) Get(key string) (*TrackedPR, error) {
	data, appErr := s.api.KVGet(trackingKeyPrefix + key)
	if appErr != nil {
		return nil, errors.Wrap(appErr, "failed to get tracking record")
	}
	if data == nil {
		return nil, nil
	}

	var pr TrackedPR
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tracking record")
	}

	return &pr, nil
}

func (s *KVStore) Set(key string, pr *TrackedPR) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tracking record")
	}

	if appErr := s.api.KVSetWithExpiry(trackingKeyPrefix+key, data, s.retentionSeconds()); appErr != nil {
		return errors.Wrap(appErr, "failed to store tracking record")
	}

	return nil
}

func (s *KVStore) Delete(key string) error {
	if appErr := s.api.KVDelete(trackingKeyPrefix + key); appErr != nil {
		return errors.Wrap(appErr, "failed to delete tracking record")
	}

	return nil
}
