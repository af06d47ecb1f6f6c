package courier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/crewbot/bot/dialogue"
)

type fakeOrders struct {
	replies map[string]string
	photos  map[string][]string
	err     error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{replies: make(map[string]string), photos: make(map[string][]string)}
}

func (f *fakeOrders) SaveCourierReply(_ context.Context, orderID, reply string) error {
	if f.err != nil {
		return f.err
	}
	f.replies[orderID] = reply
	return nil
}

func (f *fakeOrders) ReplacePhotos(_ context.Context, orderID string, blobKeys []string) error {
	if f.err != nil {
		return f.err
	}
	f.photos[orderID] = blobKeys
	return nil
}

type fakeBlobs struct {
	saved []string
	err   error
}

func (f *fakeBlobs) Save(_ context.Context, key string, _ io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, key)
	return key, nil
}

const courierID int64 = 7007

func newTestService(orders *fakeOrders, blobs *fakeBlobs) *Service {
	return NewService(time.Hour, orders, blobs)
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func photoBatch(n int) []Photo {
	photos, _ := trackedBatch(n)
	return photos
}

func trackedBatch(n int) ([]Photo, []*trackingCloser) {
	photos := make([]Photo, 0, n)
	closers := make([]*trackingCloser, 0, n)
	for i := 0; i < n; i++ {
		tc := &trackingCloser{Reader: strings.NewReader("jpeg bytes")}
		closers = append(closers, tc)
		photos = append(photos, Photo{
			Name: fmt.Sprintf("photo%d.jpg", i),
			R:    tc,
		})
	}
	return photos, closers
}

func TestOpenPromptNamesTheOrder(t *testing.T) {
	svc := newTestService(newFakeOrders(), &fakeBlobs{})

	prompt := svc.Open(courierID, "A-17")
	if !strings.Contains(prompt, "A-17") {
		t.Errorf("prompt does not name the order: %q", prompt)
	}
	if step, ok := svc.Step(courierID); !ok || step != dialogue.StepCourierReply {
		t.Errorf("step = (%q, %v), want waiting_courier_reply", step, ok)
	}
	if got := svc.OrderID(courierID); got != "A-17" {
		t.Errorf("OrderID = %q, want A-17", got)
	}
}

func TestReplyPersistedImmediately(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	svc := newTestService(orders, &fakeBlobs{})
	svc.Open(courierID, "A-17")

	reply, askPhoto, err := svc.SubmitReply(ctx, courierID, "  customer was not home  ")
	if err != nil {
		t.Fatalf("SubmitReply error: %v", err)
	}
	if reply != MsgAskPhoto || !askPhoto {
		t.Fatalf("SubmitReply = (%q, %v), want photo question", reply, askPhoto)
	}
	if got := orders.replies["A-17"]; got != "customer was not home" {
		t.Errorf("persisted reply = %q", got)
	}
	// still in the reply step until the photo question is answered
	if step, _ := svc.Step(courierID); step != dialogue.StepCourierReply {
		t.Errorf("step = %q, want waiting_courier_reply", step)
	}
}

func TestReplyLengthCapCountsRunes(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	svc := newTestService(orders, &fakeBlobs{})
	svc.Open(courierID, "A-17")

	tooLong := strings.Repeat("ж", MaxReplyLength+1)
	reply, askPhoto, err := svc.SubmitReply(ctx, courierID, tooLong)
	if err != nil || askPhoto {
		t.Fatalf("SubmitReply = (_, %v, %v)", askPhoto, err)
	}
	if reply != MsgReplyTooLong {
		t.Fatalf("reply = %q, want too-long message", reply)
	}
	if _, ok := orders.replies["A-17"]; ok {
		t.Error("over-long reply was persisted")
	}

	// exactly at the cap passes
	atCap := strings.Repeat("ж", MaxReplyLength)
	if reply, _, _ := svc.SubmitReply(ctx, courierID, atCap); reply != MsgAskPhoto {
		t.Errorf("reply at cap = %q, want photo question", reply)
	}
}

func TestDeclinePhotoFinishesDialogue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "wrong address on the label")

	reply, err := svc.ConfirmPhoto(ctx, courierID, false)
	if err != nil || reply != MsgThanks {
		t.Fatalf("ConfirmPhoto = (%q, %v), want thanks", reply, err)
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived the no-photo finish")
	}
}

func TestAcceptPhotoAdvancesToUpload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "box was damaged")

	reply, err := svc.ConfirmPhoto(ctx, courierID, true)
	if err != nil || reply != MsgSendPhotos {
		t.Fatalf("ConfirmPhoto = (%q, %v), want send-photos prompt", reply, err)
	}
	if step, _ := svc.Step(courierID); step != dialogue.StepAwaitingPhoto {
		t.Errorf("step = %q, want awaiting_photo", step)
	}
}

func TestConfirmBeforeReplyIsIntegrityFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")

	reply, err := svc.ConfirmPhoto(ctx, courierID, true)
	if err != nil || reply != MsgRestart {
		t.Fatalf("ConfirmPhoto = (%q, %v), want restart message", reply, err)
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived the integrity failure")
	}
}

func TestConfirmWithoutSessionIsSilent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})

	reply, err := svc.ConfirmPhoto(ctx, courierID, true)
	if reply != "" || err != nil {
		t.Errorf("ConfirmPhoto = (%q, %v), want silent consumption", reply, err)
	}
}

func TestSubmitPhotosStoresAndFinishes(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	blobs := &fakeBlobs{}
	svc := newTestService(orders, blobs)
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	reply, err := svc.SubmitPhotos(ctx, courierID, photoBatch(2))
	if err != nil {
		t.Fatalf("SubmitPhotos error: %v", err)
	}
	if reply != MsgPhotosSaved(2) {
		t.Fatalf("reply = %q, want saved confirmation for 2 photos", reply)
	}
	if len(blobs.saved) != 2 {
		t.Fatalf("%d blobs saved, want 2", len(blobs.saved))
	}
	if !strings.HasPrefix(blobs.saved[0], "A-17/") {
		t.Errorf("blob key %q not scoped to the order", blobs.saved[0])
	}
	if got := orders.photos["A-17"]; len(got) != 2 {
		t.Errorf("photo records = %v, want 2 keys", got)
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived the photo submission")
	}
}

func TestSubmitPhotosDropsExcess(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	blobs := &fakeBlobs{}
	svc := newTestService(orders, blobs)
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	reply, err := svc.SubmitPhotos(ctx, courierID, photoBatch(MaxPhotos+2))
	if err != nil {
		t.Fatalf("SubmitPhotos error: %v", err)
	}
	if reply != MsgPhotosSaved(MaxPhotos) {
		t.Errorf("reply = %q, want confirmation capped at %d", reply, MaxPhotos)
	}
	if len(blobs.saved) != MaxPhotos {
		t.Errorf("%d blobs saved, want %d", len(blobs.saved), MaxPhotos)
	}
}

func TestSubmitPhotosClosesEveryReader(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	photos, closers := trackedBatch(MaxPhotos + 2)
	if _, err := svc.SubmitPhotos(ctx, courierID, photos); err != nil {
		t.Fatalf("SubmitPhotos error: %v", err)
	}
	for i, c := range closers {
		if !c.closed {
			t.Errorf("reader %d left open", i)
		}
	}
}

func TestSubmitPhotosClosesReadersWithoutSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})

	photos, closers := trackedBatch(2)
	reply, err := svc.SubmitPhotos(ctx, courierID, photos)
	if reply != "" || err != nil {
		t.Fatalf("SubmitPhotos = (%q, %v), want silent consumption", reply, err)
	}
	for i, c := range closers {
		if !c.closed {
			t.Errorf("reader %d left open", i)
		}
	}
}

func TestSubmitPhotosClosesReadersOnUploadFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{err: errors.New("disk full")})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	photos, closers := trackedBatch(2)
	if _, err := svc.SubmitPhotos(ctx, courierID, photos); err == nil {
		t.Fatal("SubmitPhotos did not surface the upload failure")
	}
	for i, c := range closers {
		if !c.closed {
			t.Errorf("reader %d left open", i)
		}
	}
}

func TestSubmitPhotosReplacesPreviousRecords(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	svc := newTestService(orders, &fakeBlobs{})

	for round := 0; round < 2; round++ {
		svc.Open(courierID, "A-17")
		svc.SubmitReply(ctx, courierID, "see photos")
		svc.ConfirmPhoto(ctx, courierID, true)
		if _, err := svc.SubmitPhotos(ctx, courierID, photoBatch(1)); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
	}
	if got := orders.photos["A-17"]; len(got) != 1 {
		t.Errorf("photo records after re-submission = %v, want the replacement only", got)
	}
}

func TestEmptyPhotoMessageRepeatsPrompt(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	reply, err := svc.SubmitPhotos(ctx, courierID, nil)
	if err != nil || reply != MsgNoPhoto {
		t.Fatalf("SubmitPhotos = (%q, %v), want no-photo prompt", reply, err)
	}
	if step, ok := svc.Step(courierID); !ok || step != dialogue.StepAwaitingPhoto {
		t.Errorf("step = (%q, %v), want to stay in awaiting_photo", step, ok)
	}
}

func TestOpenReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "first order reply")
	svc.ConfirmPhoto(ctx, courierID, true)

	svc.Open(courierID, "B-42")
	if got := svc.OrderID(courierID); got != "B-42" {
		t.Errorf("OrderID = %q, want B-42", got)
	}
	if step, _ := svc.Step(courierID); step != dialogue.StepCourierReply {
		t.Errorf("step = %q, want a fresh waiting_courier_reply", step)
	}
}

func TestSaveFailureTearsSessionDown(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrders()
	orders.err = errors.New("db down")
	svc := newTestService(orders, &fakeBlobs{})
	svc.Open(courierID, "A-17")

	if _, _, err := svc.SubmitReply(ctx, courierID, "reply"); err == nil {
		t.Fatal("SubmitReply did not surface the save failure")
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived the save failure")
	}
}

func TestBlobFailureTearsSessionDown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeOrders(), &fakeBlobs{err: errors.New("disk full")})
	svc.Open(courierID, "A-17")
	svc.SubmitReply(ctx, courierID, "see photos")
	svc.ConfirmPhoto(ctx, courierID, true)

	if _, err := svc.SubmitPhotos(ctx, courierID, photoBatch(1)); err == nil {
		t.Fatal("SubmitPhotos did not surface the upload failure")
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived the upload failure")
	}
}

func TestCancel(t *testing.T) {
	svc := newTestService(newFakeOrders(), &fakeBlobs{})

	if _, ok := svc.Cancel(courierID); ok {
		t.Error("Cancel without session reported success")
	}

	svc.Open(courierID, "A-17")
	reply, ok := svc.Cancel(courierID)
	if !ok || reply != MsgCancelled {
		t.Errorf("Cancel = (%q, %v), want cancelled message", reply, ok)
	}
	if _, ok := svc.Step(courierID); ok {
		t.Error("session survived Cancel")
	}
}
