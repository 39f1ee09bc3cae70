package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"loomtrade/internal/config"
	"loomtrade/internal/models"
)

// In-memory repository fakes so service behavior can be exercised without a
// running MongoDB.

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.users[user.ID] = &cp
	return user, nil
}

func (r *fakeUserRepo) FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone && u.CountryCode == countryCode {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) countByPhone(phone, countryCode string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.Phone == phone && u.CountryCode == countryCode {
			n++
		}
	}
	return n
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) Activate(ctx context.Context, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.IsActive = true
	return nil
}

func (r *fakeUserRepo) Update(ctx context.Context, userID primitive.ObjectID, updateFields bson.M) (*mongo.UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return &mongo.UpdateResult{}, nil
	}
	if v, ok := updateFields["full_name"].(string); ok {
		u.FullName = v
	}
	if v, ok := updateFields["image"].(string); ok {
		u.Image = v
	}
	if v, ok := updateFields["dob"].(time.Time); ok {
		u.DOB = &v
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (r *fakeUserRepo) UpsertByEmail(ctx context.Context, email string, updateFields bson.M) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			if v, ok := updateFields["full_name"].(string); ok {
				u.FullName = v
			}
			u.IsActive = true
			cp := *u
			return &cp, nil
		}
	}
	u := &models.User{ID: primitive.NewObjectID(), Email: email, IsActive: true}
	if v, ok := updateFields["full_name"].(string); ok {
		u.FullName = v
	}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

type fakeOTPRepo struct {
	mu      sync.Mutex
	records map[string]*models.OTP
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{records: make(map[string]*models.OTP)}
}

func fakeOTPKey(phone, countryCode string) string {
	return countryCode + phone
}

func (r *fakeOTPRepo) FindByKey(ctx context.Context, phone, countryCode string) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if otp, ok := r.records[fakeOTPKey(phone, countryCode)]; ok {
		cp := *otp
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOTPRepo) FindByKeyAndHints(ctx context.Context, phone, countryCode string, hints models.DeviceMeta) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp, ok := r.records[fakeOTPKey(phone, countryCode)]
	if !ok {
		return nil, nil
	}
	if hints.DeviceID != "" && otp.DeviceMeta.DeviceID != hints.DeviceID {
		return nil, nil
	}
	if hints.CompanyBrand != "" && otp.DeviceMeta.CompanyBrand != hints.CompanyBrand {
		return nil, nil
	}
	if hints.CompanyDevice != "" && otp.DeviceMeta.CompanyDevice != hints.CompanyDevice {
		return nil, nil
	}
	if hints.CompanyModel != "" && otp.DeviceMeta.CompanyModel != hints.CompanyModel {
		return nil, nil
	}
	if hints.AppVersion != "" && otp.DeviceMeta.AppVersion != hints.AppVersion {
		return nil, nil
	}
	cp := *otp
	return &cp, nil
}

func (r *fakeOTPRepo) Upsert(ctx context.Context, otp *models.OTP) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fakeOTPKey(otp.Phone, otp.CountryCode)
	cp := *otp
	if existing, ok := r.records[key]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.ID = primitive.NewObjectID()
		cp.CreatedAt = time.Now()
	}
	cp.Status = models.OTPStatusPending
	cp.UpdatedAt = time.Now()
	r.records[key] = &cp
	out := cp
	return &out, nil
}

func (r *fakeOTPRepo) MarkStatus(ctx context.Context, otpID primitive.ObjectID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, otp := range r.records {
		if otp.ID == otpID {
			otp.Status = status
			return nil
		}
	}
	return nil
}

func (r *fakeOTPRepo) DeleteByKey(ctx context.Context, phone, countryCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, fakeOTPKey(phone, countryCode))
	return nil
}

func (r *fakeOTPRepo) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, otp := range r.records {
		if time.Now().After(otp.Expiry) {
			delete(r.records, key)
		}
	}
	return nil
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices []models.Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{}
}

func (r *fakeDeviceRepo) FindByUserAndDevice(ctx context.Context, userID primitive.ObjectID, deviceID string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].UserID == userID && r.devices[i].DeviceID == deviceID {
			cp := r.devices[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Device
	for _, d := range r.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (r *fakeDeviceRepo) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.devices {
		if d.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeDeviceRepo) Insert(ctx context.Context, device *models.Device) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if device.ID.IsZero() {
		device.ID = primitive.NewObjectID()
	}
	r.devices = append(r.devices, *device)
	return device, nil
}

func (r *fakeDeviceRepo) UpdateMeta(ctx context.Context, id primitive.ObjectID, updateFields bson.M) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].ID == id {
			if v, ok := updateFields["user_agent"].(string); ok {
				r.devices[i].UserAgent = v
			}
			if v, ok := updateFields["ip"].(string); ok {
				r.devices[i].IP = v
			}
			if v, ok := updateFields["last_seen"].(time.Time); ok {
				r.devices[i].LastSeen = v
			} else {
				r.devices[i].LastSeen = time.Now()
			}
			return nil
		}
	}
	return nil
}

func (r *fakeDeviceRepo) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].ID == id {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeSMSSender struct {
	mu    sync.Mutex
	sent  []string
	codes []string
	fail  bool
}

func (s *fakeSMSSender) Send(ctx context.Context, fullPhone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("vendor unavailable")
	}
	s.sent = append(s.sent, fullPhone)
	s.codes = append(s.codes, code)
	return nil
}

func (s *fakeSMSSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func testPolicy() config.AuthPolicy {
	return config.DefaultAuthPolicy()
}
