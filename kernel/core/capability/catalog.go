package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
)

// Result type tags beyond the bridge primitives.
const (
	TagAppLoginResult                           = "AppLoginResult"
	TagCheckoutPaymentResult                    = "CheckoutPaymentResult"
	TagContactResult                            = "ContactResult"
	TagImageResponse                            = "ImageResponse"
	TagImageResponseList                        = "ImageResponse[]"
	TagLocation                                 = "Location"
	TagNetworkStatus                            = "NetworkStatus"
	TagSetScreenAwakeModeResult                 = "SetScreenAwakeModeResult"
	TagSetSecureScreenResult                    = "SetSecureScreenResult"
	TagGameCenterGameProfileResponse            = "GameCenterGameProfileResponse"
	TagSubmitGameCenterLeaderBoardScoreResponse = "SubmitGameCenterLeaderBoardScoreResponse"
	TagGetUserKeyForGameResult                  = "GetUserKeyForGameResult"
	TagGrantPromotionRewardForGameResult        = "GrantPromotionRewardForGameResult"

	TagBaseResult        = "BaseResult"
	TagUserInfoResult    = "UserInfoResult"
	TagPaymentResult     = "PaymentResult"
	TagDeviceInfoResult  = "DeviceInfoResult"
	TagNetworkTypeResult = "NetworkTypeResult"
	TagStorageDataResult = "StorageDataResult"
	TagAdEvent           = "AdEvent"
)

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]Descriptor)
)

func add(d Descriptor) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[d.Name]; dup {
		panic(fmt.Sprintf("capability %s declared twice", d.Name))
	}
	catalog[d.Name] = d
}

// Platform capabilities.
var (
	AppLogin                         = oneShot[struct{}, AppLoginResult]("appLogin", TagAppLoginResult, false)
	CheckoutPayment                  = oneShot[CheckoutPaymentOptions, CheckoutPaymentResult]("checkoutPayment", TagCheckoutPaymentResult, false)
	FetchContacts                    = oneShot[FetchContactsOptions, ContactResult]("fetchContacts", TagContactResult, false)
	FetchAlbumPhotos                 = oneShot[FetchAlbumPhotosOptions, []ImageResponse]("fetchAlbumPhotos", TagImageResponseList, false)
	OpenCamera                       = oneShot[OpenCameraOptions, ImageResponse]("openCamera", TagImageResponse, false)
	GetCurrentLocation               = oneShot[GetCurrentLocationOptions, Location]("getCurrentLocation", TagLocation, false)
	GetNetworkStatus                 = oneShot[struct{}, NetworkStatus]("getNetworkStatus", TagNetworkStatus, false)
	SetScreenAwakeMode               = oneShot[SetScreenAwakeModeOptions, SetScreenAwakeModeResult]("setScreenAwakeMode", TagSetScreenAwakeModeResult, false)
	SetSecureScreen                  = oneShot[SetSecureScreenOptions, SetSecureScreenResult]("setSecureScreen", TagSetSecureScreenResult, false)
	GetGameCenterGameProfile         = oneShot[struct{}, GameCenterGameProfileResponse]("getGameCenterGameProfile", TagGameCenterGameProfileResponse, false)
	SubmitGameCenterLeaderBoardScore = oneShot[SubmitGameCenterLeaderBoardScoreParams, SubmitGameCenterLeaderBoardScoreResponse]("submitGameCenterLeaderBoardScore", TagSubmitGameCenterLeaderBoardScoreResponse, false)
	GetUserKeyForGame                = oneShot[struct{}, GetUserKeyForGameResult]("getUserKeyForGame", TagGetUserKeyForGameResult, false)
	GrantPromotionRewardForGame      = oneShot[GrantPromotionRewardForGameParams, GrantPromotionRewardForGameResult]("grantPromotionRewardForGame", TagGrantPromotionRewardForGameResult, false)
	GetClipboardText                 = oneShot[struct{}, string]("getClipboardText", bridge.TagString, false)
	// options is the in-app path to share
	GetTossShareLink = oneShot[string, string]("getTossShareLink", bridge.TagString, false)

	EventLog                  = void[EventLogParams]("eventLog")
	GenerateHapticFeedback    = void[HapticFeedbackOptions]("generateHapticFeedback")
	OpenURL                   = void[string]("openURL")
	SetClipboardText          = void[string]("setClipboardText")
	Share                     = void[ShareMessage]("share")
	SaveBase64Data            = void[SaveBase64DataParams]("saveBase64Data")
	SetDeviceOrientation      = void[SetDeviceOrientationOptions]("setDeviceOrientation")
	SetIosSwipeGestureEnabled = void[SetIosSwipeGestureEnabledOptions]("setIosSwipeGestureEnabled")
	AppsInTossSignTossCert    = void[AppsInTossSignTossCertParams]("appsInTossSignTossCert")
	GetDeviceID               = void[struct{}]("getDeviceId")
	GetLocale                 = void[struct{}]("getLocale")
	GetPlatformOS             = void[struct{}]("getPlatformOS")
	GetOperationalEnvironment = void[struct{}]("getOperationalEnvironment")
	GetSchemeURI              = void[struct{}]("getSchemeUri")
	GetTossAppVersion         = void[struct{}]("getTossAppVersion")

	StartUpdateLocation = stream[StartUpdateLocationOptions, Location]("startUpdateLocation", TagLocation, false)
	// events carry the new visibility
	OnVisibilityChangedByTransparentServiceWeb = stream[struct{}, bool]("onVisibilityChangedByTransparentServiceWeb", bridge.TagBool, false)
)

// Legacy bridge family.
var (
	Login             = oneShot[LoginOptions, UserInfoResult]("login", TagUserInfoResult, true)
	GetUserInfo       = oneShot[struct{}, UserInfoResult]("getUserInfo", TagUserInfoResult, true)
	Logout            = oneShot[struct{}, BaseResult]("logout", TagBaseResult, true)
	RequestPayment    = oneShot[PaymentOptions, PaymentResult]("requestPayment", TagPaymentResult, true)
	GetDeviceInfo     = oneShot[struct{}, DeviceInfoResult]("getDeviceInfo", TagDeviceInfoResult, true)
	GetNetworkType    = oneShot[struct{}, NetworkTypeResult]("getNetworkType", TagNetworkTypeResult, true)
	SetStorageData    = oneShot[StorageSetOptions, BaseResult]("setStorageData", TagBaseResult, true)
	GetStorageData    = oneShot[StorageKeyOptions, StorageDataResult]("getStorageData", TagStorageDataResult, true)
	RemoveStorageData = oneShot[StorageKeyOptions, BaseResult]("removeStorageData", TagBaseResult, true)

	ShowInterstitialAd = stream[AdOptions, AdEvent]("showInterstitialAd", TagAdEvent, true)
	ShowRewardedAd     = stream[AdOptions, AdEvent]("showRewardedAd", TagAdEvent, true)

	Vibrate      = fireOnly[VibrateOptions]("vibrate", true)
	TrackEvent   = fireOnly[TrackEventParams]("trackEvent", true)
	HideBannerAd = fireOnly[struct{}]("hideBannerAd", true)
)

// Lookup finds a capability by name.
func Lookup(name string) (Descriptor, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	d, ok := catalog[name]
	return d, ok
}

// All lists every declared capability sorted by name.
func All() []Descriptor {
	catalogMu.RLock()
	all := lo.Values(catalog)
	catalogMu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Names lists capability names, sorted.
func Names() []string {
	return lo.Map(All(), func(d Descriptor, _ int) string { return d.Name })
}

// Register installs a decoder for every result type tag in the catalog.
func Register(reg *bridge.Registry) error {
	for _, d := range All() {
		if d.register == nil {
			continue
		}
		if err := d.register(reg); err != nil {
			return fmt.Errorf("register %s (%s): %w", d.Name, d.Tag, err)
		}
	}
	return nil
}
