package otpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

var _ otp.Repository = (*RedisRepository)(nil)

// RedisRepository keeps codes as JSON strings that expire with the code,
// plus a per contact pointer to the latest device.
type RedisRepository struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisRepository(rdb redis.Cmdable, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "authlink:otp"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) deviceKey(deviceID string) string {
	return r.prefix + ":device:" + deviceID
}

func (r *RedisRepository) contactKey(tenantID kernel.TenantID, contact string) string {
	return r.prefix + ":contact:" + tenantID.String() + ":" + strings.ToLower(contact)
}

func ttl(o *otp.OTP) time.Duration {
	if d := time.Until(o.ExpiresAt); d > 0 {
		return d
	}
	return time.Second
}

func (r *RedisRepository) Create(ctx context.Context, o *otp.OTP) error {
	data, err := json.Marshal(o)
	if err != nil {
		return otp.ErrStoreFailure(err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.deviceKey(o.DeviceID), data, ttl(o))
		pipe.Set(ctx, r.contactKey(o.TenantID, o.Contact), o.DeviceID, ttl(o))
		return nil
	})
	if err != nil {
		return otp.ErrStoreFailure(err).WithDetail("device_id", o.DeviceID)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, deviceID string) (*otp.OTP, error) {
	data, err := r.rdb.Get(ctx, r.deviceKey(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, otp.ErrStoreFailure(err).WithDetail("device_id", deviceID)
	}

	var o otp.OTP
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, otp.ErrStoreFailure(err).WithDetail("device_id", deviceID)
	}
	return &o, nil
}

func (r *RedisRepository) GetLatestByContact(ctx context.Context, tenantID kernel.TenantID, contact string) (*otp.OTP, error) {
	deviceID, err := r.rdb.Get(ctx, r.contactKey(tenantID, contact)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, otp.ErrStoreFailure(err)
	}
	return r.Get(ctx, deviceID)
}

// Update rewrites the code keeping its remaining lifetime.
func (r *RedisRepository) Update(ctx context.Context, o *otp.OTP) error {
	data, err := json.Marshal(o)
	if err != nil {
		return otp.ErrStoreFailure(err)
	}
	if err := r.rdb.Set(ctx, r.deviceKey(o.DeviceID), data, ttl(o)).Err(); err != nil {
		return otp.ErrStoreFailure(err).WithDetail("device_id", o.DeviceID)
	}
	return nil
}

// Delete drops the code and the contact pointer when it still names o.
func (r *RedisRepository) Delete(ctx context.Context, o *otp.OTP) error {
	keys := []string{r.deviceKey(o.DeviceID)}
	latest, err := r.rdb.Get(ctx, r.contactKey(o.TenantID, o.Contact)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return otp.ErrStoreFailure(err)
	}
	if latest == o.DeviceID {
		keys = append(keys, r.contactKey(o.TenantID, o.Contact))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return otp.ErrStoreFailure(err).WithDetail("device_id", o.DeviceID)
	}
	return nil
}
