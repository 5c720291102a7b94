package capability

// Option and result shapes exchanged with the host. Field names follow the
// host SDK's JSON.

type AppLoginResult struct {
	AuthorizationCode string `json:"authorizationCode"`
	Referrer          string `json:"referrer"`
}

type CheckoutPaymentOptions struct {
	PayToken string `json:"payToken"`
}

type CheckoutPaymentResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type FetchContactsOptions struct {
	Size   int    `json:"size"`
	Offset int    `json:"offset"`
	Query  string `json:"query,omitempty"`
}

type Contact struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

type ContactResult struct {
	Result     []Contact `json:"result"`
	NextOffset int       `json:"nextOffset"`
	Done       bool      `json:"done"`
}

type FetchAlbumPhotosOptions struct {
	MaxCount int  `json:"maxCount,omitempty"`
	MaxWidth int  `json:"maxWidth,omitempty"`
	Base64   bool `json:"base64,omitempty"`
}

type OpenCameraOptions struct {
	MaxWidth int  `json:"maxWidth,omitempty"`
	Base64   bool `json:"base64,omitempty"`
}

type ImageResponse struct {
	ID      string `json:"id"`
	DataURI string `json:"dataUri"`
}

// Accuracy levels for location requests, 1 (lowest) to 6 (navigation).
const (
	AccuracyLowest     = 1
	AccuracyLow        = 2
	AccuracyBalanced   = 3
	AccuracyHigh       = 4
	AccuracyHighest    = 5
	AccuracyNavigation = 6
)

type GetCurrentLocationOptions struct {
	Accuracy int `json:"accuracy"`
}

type StartUpdateLocationOptions struct {
	Accuracy int `json:"accuracy"`
	// Milliseconds between updates.
	TimeInterval int `json:"timeInterval"`
	// Metres moved before an update.
	DistanceInterval int `json:"distanceInterval"`
}

type LocationCoords struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Altitude         float64 `json:"altitude"`
	Accuracy         float64 `json:"accuracy"`
	AltitudeAccuracy float64 `json:"altitudeAccuracy"`
	Heading          float64 `json:"heading"`
}

type Location struct {
	Coords LocationCoords `json:"coords"`
	// Unix milliseconds.
	Timestamp      int64  `json:"timestamp"`
	AccessLocation string `json:"accessLocation,omitempty"`
}

type NetworkStatus struct {
	Type        string `json:"type"`
	IsConnected bool   `json:"isConnected"`
}

type SetScreenAwakeModeOptions struct {
	Enabled bool `json:"enabled"`
}

type SetScreenAwakeModeResult struct {
	Enabled bool `json:"enabled"`
}

type SetSecureScreenOptions struct {
	Enabled bool `json:"enabled"`
}

type SetSecureScreenResult struct {
	Enabled bool `json:"enabled"`
}

type GameCenterGameProfileResponse struct {
	StatusCode      string `json:"statusCode"`
	Nickname        string `json:"nickname,omitempty"`
	ProfileImageURI string `json:"profileImageUri,omitempty"`
}

type SubmitGameCenterLeaderBoardScoreParams struct {
	Score string `json:"score"`
}

type SubmitGameCenterLeaderBoardScoreResponse struct {
	StatusCode string `json:"statusCode"`
}

type GetUserKeyForGameResult struct {
	Type string `json:"type"`
	Hash string `json:"hash,omitempty"`
}

type GrantPromotionRewardForGameParams struct {
	PromotionCode string `json:"promotionCode"`
	Amount        int    `json:"amount"`
}

type GrantPromotionRewardForGameResult struct {
	Key       string `json:"key,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

type EventLogParams struct {
	LogName string                 `json:"log_name"`
	LogType string                 `json:"log_type"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type HapticFeedbackOptions struct {
	// tap, tickWeak, tickMedium, success, error, wiggle, confetti ...
	Type string `json:"type"`
}

type ShareMessage struct {
	Message string `json:"message"`
}

type SaveBase64DataParams struct {
	Data     string `json:"data"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

type SetDeviceOrientationOptions struct {
	// portrait or landscape
	Type string `json:"type"`
}

type SetIosSwipeGestureEnabledOptions struct {
	IsEnabled bool `json:"isEnabled"`
}

type AppsInTossSignTossCertParams struct {
	TxID string `json:"txId"`
}

// Legacy bridge family. Every result carries the BaseResult fields.

type BaseResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

type LoginOptions struct {
	RequestUserInfo bool `json:"requestUserInfo"`
}

type UserInfoResult struct {
	BaseResult
	UserID       string `json:"userId,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type PaymentOptions struct {
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	ProductName string `json:"productName"`
	CustomerKey string `json:"customerKey"`
}

type PaymentResult struct {
	BaseResult
	PaymentKey string `json:"paymentKey,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Status     string `json:"status,omitempty"`
	ApprovedAt string `json:"approvedAt,omitempty"`
}

type DeviceInfoResult struct {
	BaseResult
	Model        string  `json:"model"`
	Brand        string  `json:"brand"`
	System       string  `json:"system"`
	Version      string  `json:"version"`
	Platform     string  `json:"platform"`
	Language     string  `json:"language"`
	ScreenWidth  int     `json:"screenWidth"`
	ScreenHeight int     `json:"screenHeight"`
	PixelRatio   float64 `json:"pixelRatio"`
}

type NetworkTypeResult struct {
	BaseResult
	NetworkType string `json:"networkType"`
	IsConnected bool   `json:"isConnected"`
}

type StorageSetOptions struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type StorageKeyOptions struct {
	Key string `json:"key"`
}

type StorageDataResult struct {
	BaseResult
	Key   string `json:"key"`
	Value string `json:"value"`
}

type AdOptions struct {
	AdUnitID string `json:"adUnitId"`
}

// Ad lifecycle event types.
const (
	AdLoaded   = "loaded"
	AdShown    = "shown"
	AdRewarded = "rewarded"
	AdClosed   = "closed"
	AdFailed   = "failed"
)

type AdEvent struct {
	Type         string `json:"type"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	RewardType   string `json:"rewardType,omitempty"`
	RewardAmount int    `json:"rewardAmount,omitempty"`
}

type VibrateOptions struct {
	// light, medium or heavy
	Type string `json:"type"`
}

type TrackEventParams struct {
	EventName  string                 `json:"eventName"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}
