package capability

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/storage"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Canned identity used by every mock answer that returns a user.
const (
	MockUserID   = "test_user_123"
	MockNickname = "Test User"
	MockEmail    = "test@appsintoss.com"
)

// MockConfig tunes the mock responder.
type MockConfig struct {
	Store *storage.Store
	// Defaults to time.Now.
	Now func() time.Time
	// Used when startUpdateLocation does not ask for an interval.
	LocationInterval time.Duration
	// Delay between an ad loading and showing.
	AdShowDelay time.Duration
	// Delay between an ad showing and closing.
	InterstitialCloseDelay time.Duration
	RewardedCloseDelay     time.Duration
	Logger                 *utils.Logger
}

// DefaultMockConfig mirrors the timings of the host bridge's test mode.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		LocationInterval:       time.Second,
		AdShowDelay:            100 * time.Millisecond,
		InterstitialCloseDelay: 2 * time.Second,
		RewardedCloseDelay:     3 * time.Second,
	}
}

type handler func(ctx context.Context, req bridge.Request) (interface{}, error)

type streamer func(req bridge.Request, emit func(interface{}), stop <-chan struct{}) error

// MockResponder answers every catalog capability in-process with the
// values the host bridge produces when no platform SDK is present.
type MockResponder struct {
	cfg       MockConfig
	store     *storage.Store
	logger    *utils.Logger
	handlers  map[string]handler
	streamers map[string]streamer

	mu        sync.Mutex
	clipboard string
}

// NewMockResponder builds a responder. A nil cfg.Store gets a fresh
// in-memory store.
func NewMockResponder(cfg MockConfig) *MockResponder {
	def := DefaultMockConfig()
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LocationInterval <= 0 {
		cfg.LocationInterval = def.LocationInterval
	}
	if cfg.AdShowDelay <= 0 {
		cfg.AdShowDelay = def.AdShowDelay
	}
	if cfg.InterstitialCloseDelay <= 0 {
		cfg.InterstitialCloseDelay = def.InterstitialCloseDelay
	}
	if cfg.RewardedCloseDelay <= 0 {
		cfg.RewardedCloseDelay = def.RewardedCloseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.DefaultLogger("mock")
	}
	if cfg.Store == nil {
		cfg.Store = storage.New(storage.WithLogger(cfg.Logger))
	}

	m := &MockResponder{cfg: cfg, store: cfg.Store, logger: cfg.Logger}
	m.handlers = m.oneShotHandlers()
	m.streamers = m.streamHandlers()
	return m
}

// Store exposes the backing key/value store.
func (m *MockResponder) Store() *storage.Store { return m.store }

// Respond implements bridge.Responder.
func (m *MockResponder) Respond(ctx context.Context, req bridge.Request) (string, error) {
	desc, known := Lookup(req.Capability)
	h, ok := m.handlers[req.Capability]
	if !ok {
		// void and fire-only capabilities have nothing to say
		if known && (desc.Kind == KindFireOnly || desc.Tag == bridge.TagVoid) {
			m.logger.Debug("Mock call", utils.String("capability", req.Capability))
			return "", nil
		}
		return "", fmt.Errorf("mock: no canned response for %s", req.Capability)
	}

	v, err := h(ctx, req)
	if err != nil {
		return "", err
	}
	tag := req.ResultTypeTag
	if tag == "" {
		tag = desc.Tag
	}
	m.logger.Debug("Mock call", utils.String("capability", req.Capability), utils.String("tag", tag))
	return bridge.EncodePayload(tag, v)
}

// RespondStream implements bridge.Responder. Events are produced on a
// separate goroutine until stop is called.
func (m *MockResponder) RespondStream(_ context.Context, req bridge.Request, emit func(string)) (func(), error) {
	s, ok := m.streamers[req.Capability]
	if !ok {
		return nil, fmt.Errorf("mock: %s is not a stream", req.Capability)
	}

	tag := req.ResultTypeTag
	if tag == "" {
		if desc, known := Lookup(req.Capability); known {
			tag = desc.Tag
		}
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	encodeEmit := func(v interface{}) {
		select {
		case <-done:
			return
		default:
		}
		payload, err := bridge.EncodePayload(tag, v)
		if err != nil {
			m.logger.Error("Mock stream encode failed", utils.String("capability", req.Capability), utils.Err(err))
			return
		}
		emit(payload)
	}

	go func() {
		if err := s(req, encodeEmit, done); err != nil {
			m.logger.Warn("Mock stream ended", utils.String("capability", req.Capability), utils.Err(err))
		}
	}()
	return stop, nil
}

func (m *MockResponder) now() time.Time { return m.cfg.Now() }

func (m *MockResponder) oneShotHandlers() map[string]handler {
	return map[string]handler{
		AppLogin.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return AppLoginResult{AuthorizationCode: "test_auth_code", Referrer: "DEFAULT"}, nil
		},
		CheckoutPayment.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts CheckoutPaymentOptions
			if err := req.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			if opts.PayToken == "" {
				return CheckoutPaymentResult{Success: false, Reason: "missing payToken"}, nil
			}
			return CheckoutPaymentResult{Success: true}, nil
		},
		FetchContacts.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts FetchContactsOptions
			if err := req.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			return pageContacts(opts), nil
		},
		FetchAlbumPhotos.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			opts := FetchAlbumPhotosOptions{MaxCount: 1}
			if err := req.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			if opts.MaxCount <= 0 {
				opts.MaxCount = 1
			}
			photos := make([]ImageResponse, opts.MaxCount)
			for i := range photos {
				photos[i] = ImageResponse{ID: fmt.Sprintf("mock_photo_%d", i), DataURI: mockImageDataURI}
			}
			return photos, nil
		},
		OpenCamera.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return ImageResponse{ID: "mock_camera_0", DataURI: mockImageDataURI}, nil
		},
		GetCurrentLocation.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return m.location(0), nil
		},
		GetNetworkStatus.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return NetworkStatus{Type: "WIFI", IsConnected: true}, nil
		},
		SetScreenAwakeMode.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts SetScreenAwakeModeOptions
			err := req.DecodeOptions(&opts)
			return SetScreenAwakeModeResult(opts), err
		},
		SetSecureScreen.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts SetSecureScreenOptions
			err := req.DecodeOptions(&opts)
			return SetSecureScreenResult(opts), err
		},
		GetGameCenterGameProfile.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return GameCenterGameProfileResponse{StatusCode: "SUCCESS", Nickname: MockNickname}, nil
		},
		SubmitGameCenterLeaderBoardScore.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return SubmitGameCenterLeaderBoardScoreResponse{StatusCode: "SUCCESS"}, nil
		},
		GetUserKeyForGame.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return GetUserKeyForGameResult{Type: "HASH", Hash: "test_user_key_123"}, nil
		},
		GrantPromotionRewardForGame.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts GrantPromotionRewardForGameParams
			if err := req.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			if opts.PromotionCode == "" {
				return GrantPromotionRewardForGameResult{ErrorCode: "4100", Message: "missing promotion code"}, nil
			}
			return GrantPromotionRewardForGameResult{Key: "test_reward_" + opts.PromotionCode}, nil
		},
		GetClipboardText.Name: func(context.Context, bridge.Request) (interface{}, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.clipboard, nil
		},
		SetClipboardText.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var text string
			if err := req.DecodeOptions(&text); err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.clipboard = text
			m.mu.Unlock()
			return struct{}{}, nil
		},
		GetTossShareLink.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var path string
			if err := req.DecodeOptions(&path); err != nil {
				return nil, err
			}
			return "intoss://test-app/" + strings.TrimPrefix(path, "/"), nil
		},

		Login.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return mockUser(), nil
		},
		GetUserInfo.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return mockUser(), nil
		},
		Logout.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return BaseResult{Success: true, Message: "Logout successful"}, nil
		},
		RequestPayment.Name: func(_ context.Context, req bridge.Request) (interface{}, error) {
			var opts PaymentOptions
			if err := req.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			now := m.now()
			return PaymentResult{
				BaseResult: BaseResult{Success: true},
				PaymentKey: fmt.Sprintf("test_payment_key_%d", now.UnixMilli()),
				OrderID:    opts.OrderID,
				Amount:     opts.Amount,
				Status:     "DONE",
				ApprovedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
			}, nil
		},
		GetDeviceInfo.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return DeviceInfoResult{
				BaseResult:   BaseResult{Success: true},
				Model:        "Unknown",
				Brand:        "Unknown",
				System:       runtime.GOOS,
				Version:      runtime.Version(),
				Platform:     "Web",
				Language:     "ko-KR",
				ScreenWidth:  390,
				ScreenHeight: 844,
				PixelRatio:   3,
			}, nil
		},
		GetNetworkType.Name: func(context.Context, bridge.Request) (interface{}, error) {
			return NetworkTypeResult{BaseResult: BaseResult{Success: true}, NetworkType: "wifi", IsConnected: true}, nil
		},
		SetStorageData.Name:    m.setStorageData,
		GetStorageData.Name:    m.getStorageData,
		RemoveStorageData.Name: m.removeStorageData,
	}
}

func (m *MockResponder) setStorageData(_ context.Context, req bridge.Request) (interface{}, error) {
	var opts StorageSetOptions
	if err := req.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := m.store.Set(opts.Key, opts.Value); err != nil {
		return BaseResult{Message: "Failed to save data: " + err.Error(), ErrorCode: -1}, nil
	}
	return BaseResult{Success: true, Message: "Data saved successfully"}, nil
}

func (m *MockResponder) getStorageData(_ context.Context, req bridge.Request) (interface{}, error) {
	var opts StorageKeyOptions
	if err := req.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	v, _ := m.store.Get(opts.Key)
	return StorageDataResult{BaseResult: BaseResult{Success: true}, Key: opts.Key, Value: v}, nil
}

func (m *MockResponder) removeStorageData(_ context.Context, req bridge.Request) (interface{}, error) {
	var opts StorageKeyOptions
	if err := req.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := m.store.Remove(opts.Key); err != nil {
		return BaseResult{Message: "Failed to remove data: " + err.Error(), ErrorCode: -1}, nil
	}
	return BaseResult{Success: true, Message: "Data removed successfully"}, nil
}

func (m *MockResponder) streamHandlers() map[string]streamer {
	return map[string]streamer{
		StartUpdateLocation.Name: m.streamLocation,
		ShowInterstitialAd.Name: func(req bridge.Request, emit func(interface{}), stop <-chan struct{}) error {
			return m.streamAd(emit, stop, false, m.cfg.InterstitialCloseDelay)
		},
		ShowRewardedAd.Name: func(req bridge.Request, emit func(interface{}), stop <-chan struct{}) error {
			return m.streamAd(emit, stop, true, m.cfg.RewardedCloseDelay)
		},
		// the page never leaves the foreground in the mock
		OnVisibilityChangedByTransparentServiceWeb.Name: func(_ bridge.Request, _ func(interface{}), stop <-chan struct{}) error {
			<-stop
			return nil
		},
	}
}

func (m *MockResponder) streamLocation(req bridge.Request, emit func(interface{}), stop <-chan struct{}) error {
	var opts StartUpdateLocationOptions
	if err := req.DecodeOptions(&opts); err != nil {
		return err
	}
	interval := m.cfg.LocationInterval
	if opts.TimeInterval > 0 {
		interval = time.Duration(opts.TimeInterval) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for step := 0; ; step++ {
		emit(m.location(step))
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
	}
}

func (m *MockResponder) streamAd(emit func(interface{}), stop <-chan struct{}, rewarded bool, closeDelay time.Duration) error {
	kind := "Interstitial"
	if rewarded {
		kind = "Rewarded"
	}
	emit(AdEvent{Type: AdLoaded, Success: true, Message: kind + " ad loaded (test)"})

	if !sleep(stop, m.cfg.AdShowDelay) {
		return nil
	}
	emit(AdEvent{Type: AdShown, Success: true})

	if !sleep(stop, closeDelay) {
		return nil
	}
	if rewarded {
		emit(AdEvent{Type: AdRewarded, Success: true, RewardType: "coins", RewardAmount: 100})
	}
	emit(AdEvent{Type: AdClosed, Success: true})

	<-stop
	return nil
}

// location walks north from Seoul City Hall a little every step.
func (m *MockResponder) location(step int) Location {
	return Location{
		Coords: LocationCoords{
			Latitude:  37.5665 + float64(step)*0.0001,
			Longitude: 126.9780,
			Accuracy:  5,
		},
		Timestamp:      m.now().UnixMilli(),
		AccessLocation: "FINE",
	}
}

func mockUser() UserInfoResult {
	return UserInfoResult{
		BaseResult: BaseResult{Success: true},
		UserID:     MockUserID,
		Nickname:   MockNickname,
		Email:      MockEmail,
	}
}

var mockContacts = []Contact{
	{Name: "Kim Toss", PhoneNumber: "010-0000-0001"},
	{Name: "Lee Toss", PhoneNumber: "010-0000-0002"},
	{Name: "Park Toss", PhoneNumber: "010-0000-0003"},
}

func pageContacts(opts FetchContactsOptions) ContactResult {
	matched := mockContacts
	if opts.Query != "" {
		matched = nil
		for _, c := range mockContacts {
			if strings.Contains(c.Name, opts.Query) {
				matched = append(matched, c)
			}
		}
	}

	size := opts.Size
	if size <= 0 {
		size = len(matched)
	}
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if size < end-start {
		end = start + size
	}
	return ContactResult{
		Result:     append([]Contact{}, matched[start:end]...),
		NextOffset: end,
		Done:       end >= len(matched),
	}
}

// 1x1 transparent PNG.
const mockImageDataURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
