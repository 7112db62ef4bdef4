// Package webhooks implements the WebhookRepository, the per-subscriber
// CircuitBreakerSet, and the WebhookDispatcher fan-out described by
// spec.md §4.3/§4.4/§4.5.
package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the closed set of event kinds a webhook can
// subscribe to.
type EventKind string

const (
	EventApplicationStartup      EventKind = "APPLICATION_STARTUP"
	EventInstanceCreate          EventKind = "INSTANCE_CREATE"
	EventInstanceDelete          EventKind = "INSTANCE_DELETE"
	EventQRCodeUpdated           EventKind = "QRCODE_UPDATED"
	EventMessagesSet             EventKind = "MESSAGES_SET"
	EventMessagesUpsert          EventKind = "MESSAGES_UPSERT"
	EventMessagesEdited          EventKind = "MESSAGES_EDITED"
	EventMessagesUpdate          EventKind = "MESSAGES_UPDATE"
	EventMessagesDelete          EventKind = "MESSAGES_DELETE"
	EventSendMessage             EventKind = "SEND_MESSAGE"
	EventSendMessageUpdate       EventKind = "SEND_MESSAGE_UPDATE"
	EventContactsSet             EventKind = "CONTACTS_SET"
	EventContactsUpdate          EventKind = "CONTACTS_UPDATE"
	EventContactsUpsert          EventKind = "CONTACTS_UPSERT"
	EventPresenceUpdate          EventKind = "PRESENCE_UPDATE"
	EventChatsSet                EventKind = "CHATS_SET"
	EventChatsUpdate             EventKind = "CHATS_UPDATE"
	EventChatsDelete             EventKind = "CHATS_DELETE"
	EventChatsUpsert             EventKind = "CHATS_UPSERT"
	EventConnectionUpdate        EventKind = "CONNECTION_UPDATE"
	EventLabelsEdit              EventKind = "LABELS_EDIT"
	EventLabelsAssociation       EventKind = "LABELS_ASSOCIATION"
	EventGroupsUpsert            EventKind = "GROUPS_UPSERT"
	EventGroupUpdate             EventKind = "GROUP_UPDATE"
	EventGroupParticipantUpdate  EventKind = "GROUP_PARTICIPANTS_UPDATE"
	EventCall                    EventKind = "CALL"
	EventTypebotStart            EventKind = "TYPEBOT_START"
	EventTypebotChangeStatus     EventKind = "TYPEBOT_CHANGE_STATUS"
	EventErrors                  EventKind = "ERRORS"
)

var validEventKinds = map[EventKind]struct{}{
	EventApplicationStartup: {}, EventInstanceCreate: {}, EventInstanceDelete: {},
	EventQRCodeUpdated: {}, EventMessagesSet: {}, EventMessagesUpsert: {},
	EventMessagesEdited: {}, EventMessagesUpdate: {}, EventMessagesDelete: {},
	EventSendMessage: {}, EventSendMessageUpdate: {}, EventContactsSet: {},
	EventContactsUpdate: {}, EventContactsUpsert: {}, EventPresenceUpdate: {},
	EventChatsSet: {}, EventChatsUpdate: {}, EventChatsDelete: {}, EventChatsUpsert: {},
	EventConnectionUpdate: {}, EventLabelsEdit: {}, EventLabelsAssociation: {},
	EventGroupsUpsert: {}, EventGroupUpdate: {}, EventGroupParticipantUpdate: {},
	EventCall: {}, EventTypebotStart: {}, EventTypebotChangeStatus: {}, EventErrors: {},
}

// IsValidEventKind reports whether kind belongs to the closed enumeration.
func IsValidEventKind(kind string) bool {
	_, ok := validEventKinds[EventKind(kind)]
	return ok
}

// AuthKind discriminates the Authentication union.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthAPIKey AuthKind = "apiKey"
	AuthJWT    AuthKind = "jwt"
)

// Authentication is a discriminated record: the Type field determines
// which of the other fields are meaningful.
type Authentication struct {
	Type     AuthKind `json:"type"`
	Token    string   `json:"token,omitempty"`
	User     string   `json:"user,omitempty"`
	Pass     string   `json:"pass,omitempty"`
	Header   string   `json:"header,omitempty"`
	JWTSecret string  `json:"jwtSecret,omitempty"`
}

// RetryConfig tunes the per-subscriber delivery retry loop.
type RetryConfig struct {
	MaxAttempts             int     `json:"maxAttempts"`
	InitialDelaySeconds     int     `json:"initialDelaySeconds"`
	UseExponentialBackoff   bool    `json:"useExponentialBackoff"`
	MaxDelaySeconds         int     `json:"maxDelaySeconds"`
	JitterFactor            float64 `json:"jitterFactor"`
	NonRetryableStatusCodes []int   `json:"nonRetryableStatusCodes"`
}

// DefaultRetryConfig is the retry config Service.Create applies when the
// input carries none.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:           3,
		InitialDelaySeconds:   1,
		UseExponentialBackoff: true,
		MaxDelaySeconds:       30,
		JitterFactor:          0.2,
	}
}

// SecurityConfig controls HMAC request signing.
type SecurityConfig struct {
	EnableSignatureValidation bool   `json:"enableSignatureValidation"`
	Secret                    string `json:"secret,omitempty"`
	HeaderName                string `json:"headerName,omitempty"`
	Algorithm                 string `json:"algorithm,omitempty"`
}

// FilterConfig scopes which instance-originated events a subscriber sees.
type FilterConfig struct {
	Instances        []string `json:"instances,omitempty"`
	ExcludeInstances []string `json:"excludeInstances,omitempty"`
}

// Stats are the monotonic delivery counters tracked per subscriber.
type Stats struct {
	TotalExecutions      int64      `json:"totalExecutions"`
	SuccessfulExecutions int64      `json:"successfulExecutions"`
	FailedExecutions     int64      `json:"failedExecutions"`
	LastExecutionAt      *time.Time `json:"lastExecutionAt,omitempty"`
	LastExecutionStatus  string     `json:"lastExecutionStatus"`
	LastExecutionError   *string    `json:"lastExecutionError,omitempty"`
}

const (
	StatusNeverExecuted = "never_executed"
	StatusSuccess       = "success"
	StatusFailed        = "failed"
)

// Subscriber is an external webhook subscription.
type Subscriber struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	URL            string         `json:"url"`
	Enabled        bool           `json:"enabled"`
	Description    string         `json:"description"`
	Events         []EventKind    `json:"events"`
	Headers        map[string]string `json:"headers"`
	Authentication Authentication `json:"authentication"`
	RetryConfig    RetryConfig    `json:"retryConfig"`
	FilterConfig   FilterConfig   `json:"filterConfig"`
	SecurityConfig SecurityConfig `json:"securityConfig"`
	Timeout        int            `json:"timeout"`
	Stats          Stats          `json:"stats"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// CreateInput is the payload accepted by Create.
type CreateInput struct {
	Name           string            `json:"name" validate:"required,min=1,max=100"`
	URL            string            `json:"url" validate:"required,url"`
	Enabled        *bool             `json:"enabled"`
	Description    string            `json:"description"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	Authentication Authentication    `json:"authentication"`
	RetryConfig    *RetryConfig      `json:"retryConfig"`
	FilterConfig   FilterConfig      `json:"filterConfig"`
	SecurityConfig SecurityConfig    `json:"securityConfig"`
	Timeout        int               `json:"timeout"`
}

// UpdateInput is the payload accepted by Update; nil fields are unchanged.
type UpdateInput struct {
	Name           *string           `json:"name"`
	URL            *string           `json:"url"`
	Enabled        *bool             `json:"enabled"`
	Description    *string           `json:"description"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	Authentication *Authentication   `json:"authentication"`
	RetryConfig    *RetryConfig      `json:"retryConfig"`
	FilterConfig   *FilterConfig     `json:"filterConfig"`
	SecurityConfig *SecurityConfig   `json:"securityConfig"`
	Timeout        *int              `json:"timeout"`
}
