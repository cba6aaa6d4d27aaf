package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pushrelay/pushrelay/internal/models"
	"github.com/pushrelay/pushrelay/internal/realtime"
	apperrors "github.com/pushrelay/pushrelay/pkg/errors"
	"github.com/pushrelay/pushrelay/pkg/logger"
	"github.com/pushrelay/pushrelay/pkg/metrics"
)

// Gateway pushes events over live transport connections. Implemented by the
// realtime hub; abstracted here so dispatch logic is testable without sockets.
type Gateway interface {
	PushToConnection(connectionID string, event realtime.Event) error
	Broadcast(event realtime.Event)
}

// SendInput describes a dispatch request. UserID targets a single recipient,
// UserGroup a named group; with neither set the notification is a broadcast
// to every subscriber, current and future.
type SendInput struct {
	Title      string
	Message    string
	Type       string
	UserID     *int64
	UserGroup  string
	ImageURL   string
	ActionText string
	ActionURL  string
	Metadata   map[string]any
}

// Dispatcher orchestrates the create → persist → fan-out → mark-delivered
// pipeline and reconciles read acknowledgements. It also implements
// realtime.Handler, so socket commands and the REST surface share one path.
type Dispatcher struct {
	notifications *NotificationService
	users         *UserService
	directory     *realtime.Directory
	gateway       Gateway
	log           *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(notifications *NotificationService, users *UserService, directory *realtime.Directory, gateway Gateway) (*Dispatcher, error) {
	if notifications == nil {
		return nil, errors.New("dispatcher: notification service is required")
	}
	if users == nil {
		return nil, errors.New("dispatcher: user service is required")
	}
	if directory == nil {
		return nil, errors.New("dispatcher: directory is required")
	}
	if gateway == nil {
		return nil, errors.New("dispatcher: gateway is required")
	}
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		directory:     directory,
		gateway:       gateway,
		log:           logger.WithModule("dispatcher"),
	}, nil
}

// Notifications exposes the backing notification store for read paths that
// bypass dispatch, such as the polling API.
func (d *Dispatcher) Notifications() *NotificationService { return d.notifications }

// Users exposes the backing user registry.
func (d *Dispatcher) Users() *UserService { return d.users }

// Dispatch validates, persists, fans out and marks the notification
// delivered, in that order. Persistence strictly precedes fan-out so a crash
// mid-dispatch leaves a durable record recoverable by polling; the delivered
// mark runs even when zero connections were live, because delivered means the
// fan-out attempt completed, not that anyone received it. Individual push
// failures are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, input SendInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	if err := validateSend(&input); err != nil {
		return nil, err
	}

	var group *string
	if trimmed := strings.TrimSpace(input.UserGroup); trimmed != "" {
		group = &trimmed
	}

	notification, err := d.notifications.Create(ctx, CreateNotificationInput{
		Title:      input.Title,
		Message:    input.Message,
		Type:       input.Type,
		UserID:     input.UserID,
		UserGroup:  group,
		ImageURL:   input.ImageURL,
		ActionText: input.ActionText,
		ActionURL:  input.ActionURL,
		Metadata:   input.Metadata,
	})
	if err != nil {
		return nil, err
	}

	targetGroup, targetKind := resolveTarget(input)
	d.fanOut(notification, targetGroup)

	if err := d.notifications.MarkDelivered(ctx, notification.ID); err != nil {
		return nil, err
	}
	metrics.NotificationsDispatched.WithLabelValues(notification.Type, targetKind).Inc()

	// Reload so the caller sees the delivered flag and timestamp.
	return d.notifications.GetByID(ctx, notification.ID)
}

func validateSend(input *SendInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.Message = strings.TrimSpace(input.Message)
	input.Type = strings.TrimSpace(input.Type)

	if input.Title == "" {
		return apperrors.NewValidation("title is required")
	}
	if input.Message == "" {
		return apperrors.NewValidation("message is required")
	}

	// An absent type defaults to info; an unknown one is rejected outright
	// rather than silently downgraded.
	if input.Type == "" {
		input.Type = models.TypeInfo
	}
	if !models.KnownType(input.Type) {
		return apperrors.NewValidation(fmt.Sprintf("unknown notification type %q", input.Type))
	}
	return nil
}

func resolveTarget(input SendInput) (group, kind string) {
	switch {
	case input.UserID != nil:
		return realtime.UserGroup(*input.UserID), "user"
	case strings.TrimSpace(input.UserGroup) != "":
		return strings.TrimSpace(input.UserGroup), "group"
	default:
		return realtime.GroupBroadcast, "broadcast"
	}
}

// fanOut pushes the notification to every live connection in the target
// group. A failing connection never aborts the remaining pushes.
func (d *Dispatcher) fanOut(notification *models.Notification, group string) {
	members := d.directory.MembersOf(group)
	if len(members) == 0 {
		metrics.OfflineDeliveries.Inc()
		d.log.Debug("no live connections for dispatch",
			zap.Int64("notification_id", notification.ID),
			zap.String("group", group),
		)
		return
	}

	event := realtime.Event{
		Event: realtime.EventNotificationReceived,
		Data:  toPayload(notification),
	}

	var pushErr error
	for _, connectionID := range members {
		if err := d.gateway.PushToConnection(connectionID, event); err != nil {
			metrics.PushFailures.Inc()
			pushErr = multierr.Append(pushErr, err)
		}
	}

	if pushErr != nil {
		d.log.Warn("some pushes failed during fan-out",
			zap.Int64("notification_id", notification.ID),
			zap.String("group", group),
			zap.Int("targets", len(members)),
			zap.Error(pushErr),
		)
	}
}

// MarkRead flips the read flag scoped to the owning user, then echoes a read
// event to the user's group so other tabs and devices converge. Zero affected
// rows (unknown id or foreign owner) still reports success: the operation is
// idempotent best-effort, and the miss is logged so ownership mismatches stay
// visible to operators.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID int64) (bool, error) {
	ctx = ensureContext(ctx)

	updated, err := d.notifications.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	if !updated {
		d.log.Warn("acknowledge matched no owned notification",
			zap.Int64("notification_id", notificationID),
			zap.Int64("user_id", userID),
		)
		return false, nil
	}

	event := realtime.Event{Event: realtime.EventNotificationRead, Data: notificationID}
	for _, connectionID := range d.directory.MembersOf(realtime.UserGroup(userID)) {
		if err := d.gateway.PushToConnection(connectionID, event); err != nil {
			metrics.PushFailures.Inc()
			d.log.Warn("read echo push failed",
				zap.String("connection_id", connectionID),
				zap.Error(err),
			)
		}
	}

	return true, nil
}

// Join implements realtime.Handler: upsert the identity, bind the connection
// to the user's self group and announce the arrival to everyone.
func (d *Dispatcher) Join(ctx context.Context, sess *realtime.Session, username, email string) error {
	ctx = ensureContext(ctx)

	user, err := d.users.Upsert(ctx, username, email, sess.ID)
	if err != nil {
		return err
	}

	// A connection holds at most one self group; a repeated join with a
	// different identity replaces the previous binding.
	if previous := sess.BindUser(user.ID); previous != 0 && previous != user.ID {
		d.directory.Unbind(sess.ID, realtime.UserGroup(previous))
	}
	d.directory.Bind(sess.ID, realtime.UserGroup(user.ID))

	d.gateway.Broadcast(realtime.Event{
		Event: realtime.EventUserConnected,
		Data:  realtime.ConnectedPayload{Username: user.Username, ConnectionID: sess.ID},
	})

	d.log.Info("user joined",
		zap.String("username", user.Username),
		zap.Int64("user_id", user.ID),
		zap.String("connection_id", sess.ID),
	)
	return nil
}

// Send implements realtime.Handler for the socket command surface.
func (d *Dispatcher) Send(ctx context.Context, _ *realtime.Session, cmd realtime.SendCommand) error {
	_, err := d.Dispatch(ctx, SendInput{
		Title:     cmd.Title,
		Message:   cmd.Message,
		Type:      cmd.Type,
		UserID:    cmd.UserID,
		UserGroup: cmd.UserGroup,
	})
	return err
}

// Acknowledge implements realtime.Handler for the socket command surface.
func (d *Dispatcher) Acknowledge(ctx context.Context, _ *realtime.Session, notificationID, userID int64) error {
	_, err := d.MarkRead(ctx, notificationID, userID)
	return err
}

// Disconnected implements realtime.Handler. The registry update, the
// directory unbind and the departure broadcast are independent failure
// domains: each runs even when another fails, and the failures are combined
// into a single log entry.
func (d *Dispatcher) Disconnected(ctx context.Context, connectionID string) {
	ctx = ensureContext(ctx)

	var errs error
	if err := d.users.SetConnectionStatus(ctx, connectionID, false); err != nil {
		errs = multierr.Append(errs, err)
	}

	d.directory.UnbindAll(connectionID)

	d.gateway.Broadcast(realtime.Event{
		Event: realtime.EventUserDisconnected,
		Data:  connectionID,
	})

	if errs != nil {
		d.log.Error("disconnect teardown incomplete",
			zap.String("connection_id", connectionID),
			zap.Error(errs),
		)
		return
	}
	d.log.Debug("connection closed", zap.String("connection_id", connectionID))
}

func toPayload(notification *models.Notification) realtime.NotificationPayload {
	payload := realtime.NotificationPayload{
		ID:         notification.ID,
		Title:      notification.Title,
		Message:    notification.Message,
		Type:       notification.Type,
		ImageURL:   notification.ImageURL,
		ActionText: notification.ActionText,
		ActionURL:  notification.ActionURL,
		CreatedAt:  notification.CreatedAt,
	}
	if len(notification.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(notification.Metadata, &meta); err == nil {
			payload.Metadata = meta
		}
	}
	return payload
}
