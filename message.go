package drippler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action names understood by the background process.
const (
	ActionInitSupabase          = "initSupabase"
	ActionForceInitSupabase     = "forceInitSupabase"
	ActionTestSupabase          = "testSupabase"
	ActionCheckSupabaseStatus   = "checkSupabaseStatus"
	ActionGetExtensionInfo      = "getExtensionInfo"
	ActionSaveToSupabase        = "saveToSupabase"
	ActionCapturePageData       = "capturePageData"
	ActionFloatingButtonClicked = "floatingButtonClicked"
	ActionSignUp                = "signUp"
	ActionSignIn                = "signIn"
	ActionSignOut               = "signOut"
	ActionResetPassword         = "resetPassword"
	ActionUpdatePassword        = "updatePassword"
	ActionGetCurrentUser        = "getCurrentUser"
	ActionGetUserProfile        = "getUserProfile"
	ActionRefreshUserSession    = "refreshUserSession"
	ActionUploadProfileImage    = "uploadProfileImage"
	ActionUploadClothingItem    = "uploadClothingItem"
	ActionSaveImageAsClothing   = "saveImageAsClothing"
	ActionGetClothingItems      = "getClothingItems"
	ActionDeleteClothingItem    = "deleteClothingItem"
	ActionGenerateVirtualTryOn  = "generateVirtualTryOn"
	ActionGetTryOnGenerations   = "getTryOnGenerations"
	ActionDeleteTryOnGeneration = "deleteTryOnGeneration"
	ActionDeleteAccount         = "deleteAccount"
	ActionUploadAvatar          = "uploadAvatar"
	ActionGetAvatars            = "getAvatars"
	ActionGetActiveAvatar       = "getActiveAvatar"
	ActionSetActiveAvatar       = "setActiveAvatar"
	ActionDeleteAvatar          = "deleteAvatar"
	ActionAddAvatarFromURL      = "addAvatarFromUrl"
	ActionOpenPopup             = "openPopup"
)

// Request is a named operation plus its payload. The payload is a JSON object.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest encodes payload into a Request. A nil payload yields an empty one.
func NewRequest(action string, payload any) (Request, error) {
	req := Request{Action: action}
	if payload == nil {
		return req, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s payload: %w", action, err)
	}
	req.Payload = b
	return req, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return Errorf(KindValidation, "invalid %s payload: %v", r.Action, err)
	}
	return nil
}

// Fields are the action specific members of a response.
type Fields map[string]any

// Response is the tagged result of a Request. Use OK or Fail to build one; a
// response never carries both a success flag and an error.
type Response struct {
	Success   bool
	Error     string
	ErrorKind Kind
	Fields    Fields
	Timestamp time.Time
}

// Now is the clock used to stamp responses.
var Now = time.Now

// OK builds a successful response.
func OK(fields Fields) Response {
	return Response{Success: true, Fields: fields, Timestamp: Now().UTC()}
}

// Fail builds a failure response from err. Extra fields (for example usage
// counters on a limit failure) may be attached.
func Fail(err error, fields ...Fields) Response {
	if err == nil {
		err = errors.New("Unknown error occurred")
	}
	resp := Response{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: KindOf(err),
		Timestamp: Now().UTC(),
	}
	for _, f := range fields {
		if resp.Fields == nil {
			resp.Fields = Fields{}
		}
		for k, v := range f {
			resp.Fields[k] = v
		}
	}
	return resp
}

// Err returns the failure as a classified error, or nil for a success.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.ErrorKind, Msg: r.Error}
}

// Get returns a field value.
func (r Response) Get(key string) any {
	return r.Fields[key]
}

var reservedKeys = map[string]struct{}{
	"success": {}, "error": {}, "errorKind": {}, "timestamp": {},
}

// MarshalJSON flattens Fields next to success, error and timestamp.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["success"] = r.Success
	if !r.Success {
		out["error"] = r.Error
		out["errorKind"] = r.ErrorKind.String()
	}
	out["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Response) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Response{}
	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return fmt.Errorf("decode success: %w", err)
		}
	}
	if v, ok := raw["error"]; ok {
		_ = json.Unmarshal(v, &r.Error)
	}
	if v, ok := raw["errorKind"]; ok {
		var s string
		_ = json.Unmarshal(v, &s)
		r.ErrorKind = ParseKind(s)
	}
	if v, ok := raw["timestamp"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			r.Timestamp, _ = time.Parse(time.RFC3339Nano, s)
		}
	}
	for k, v := range raw {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if r.Fields == nil {
			r.Fields = Fields{}
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		r.Fields[k] = val
	}
	if r.Success {
		r.Error = ""
		r.ErrorKind = KindUnknown
	}
	return nil
}
