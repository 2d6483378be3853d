package checkout

import (
	"context"
	"errors"
	"strconv"
	"testing"

	stripeinfra "github.com/ckojak/estudobiblico75/internal/infra/stripe"
	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

type stubGateway struct {
	created   []stripeinfra.SessionInput
	session   stripeinfra.Session
	getErr    error
	event     stripeinfra.Event
	verifyErr error
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, in stripeinfra.SessionInput) (stripeinfra.Session, error) {
	g.created = append(g.created, in)
	return stripeinfra.Session{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (g *stubGateway) GetCheckoutSession(_ context.Context, _ string) (stripeinfra.Session, error) {
	return g.session, g.getErr
}

func (g *stubGateway) VerifyWebhook(_ []byte, _ string) (stripeinfra.Event, error) {
	return g.event, g.verifyErr
}

type stubBooks struct {
	book pgrepo.BookRecord
	err  error
}

func (s *stubBooks) ResolveByRef(_ context.Context, _ string) (pgrepo.BookRecord, error) {
	return s.book, s.err
}

// fakeLedger mirrors the database coordination rules in memory: one row
// per payment reference, one completed row per user and book, pending
// rows promoted in place.
type fakeLedger struct {
	rows   []*pgrepo.PurchaseRecord
	nextID int
}

func (f *fakeLedger) SettleCompleted(_ context.Context, in pgrepo.SettleInput) (pgrepo.PurchaseRecord, bool, error) {
	for _, row := range f.rows {
		if row.PaymentReference != nil && *row.PaymentReference == in.PaymentReference {
			return *row, false, nil
		}
	}
	for _, row := range f.rows {
		if row.UserID == in.UserID && row.BookID == in.BookID && row.Status == pgrepo.PurchaseStatusCompleted {
			return *row, false, nil
		}
	}
	for _, row := range f.rows {
		if row.UserID == in.UserID && row.BookID == in.BookID && row.Status == pgrepo.PurchaseStatusPending {
			ref := in.PaymentReference
			row.Status = pgrepo.PurchaseStatusCompleted
			row.PaymentReference = &ref
			row.AmountPaidCents = in.AmountPaidCents
			return *row, true, nil
		}
	}

	f.nextID++
	ref := in.PaymentReference
	row := &pgrepo.PurchaseRecord{
		ID:               "p-" + strconv.Itoa(f.nextID),
		UserID:           in.UserID,
		BookID:           in.BookID,
		AmountPaidCents:  in.AmountPaidCents,
		ServiceFeeCents:  in.ServiceFeeCents,
		Status:           pgrepo.PurchaseStatusCompleted,
		PaymentReference: &ref,
	}
	f.rows = append(f.rows, row)
	return *row, true, nil
}

func (f *fakeLedger) FindCompleted(_ context.Context, userID, bookID string) (pgrepo.PurchaseRecord, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.BookID == bookID && row.Status == pgrepo.PurchaseStatusCompleted {
			return *row, nil
		}
	}
	return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
}

func (f *fakeLedger) MarkFailed(_ context.Context, userID, bookID string) (bool, error) {
	changed := false
	for _, row := range f.rows {
		if row.UserID == userID && row.BookID == bookID && row.Status == pgrepo.PurchaseStatusPending {
			row.Status = pgrepo.PurchaseStatusFailed
			changed = true
		}
	}
	return changed, nil
}

func (f *fakeLedger) completedCount(userID, bookID string) int {
	n := 0
	for _, row := range f.rows {
		if row.UserID == userID && row.BookID == bookID && row.Status == pgrepo.PurchaseStatusCompleted {
			n++
		}
	}
	return n
}

type stubLimiter struct {
	allowed    bool
	retryAfter int64
}

func (l *stubLimiter) AllowCheckout(_ context.Context, _ string) (int64, bool, error) {
	return l.retryAfter, l.allowed, nil
}

func testBook() pgrepo.BookRecord {
	return pgrepo.BookRecord{
		ID:             "b-1",
		Slug:           "apocalipse-comentado",
		Title:          "Apocalipse Comentado",
		SalePriceCents: 2990,
	}
}

func testConfig() Config {
	return Config{
		SuccessURL:      "https://shop.test/sucesso?book=%s",
		CancelURL:       "https://shop.test/",
		ServiceFeeCents: 93,
	}
}

func paidSession(ref string) stripeinfra.Session {
	return stripeinfra.Session{
		ID:               "cs_" + ref,
		PaymentReference: ref,
		Paid:             true,
		AmountTotalCents: 3083,
		Metadata:         map[string]string{"bookId": "b-1", "userId": "u-1"},
	}
}

func TestCreateSessionBindsPurchaseMetadata(t *testing.T) {
	gateway := &stubGateway{}
	svc := NewService(gateway, &stubBooks{book: testBook()}, &fakeLedger{}, testConfig())

	sess, err := svc.CreateSession(context.Background(), "u-1", "reader@example.com", "apocalipse-comentado")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.SessionID != "cs_test_1" || sess.URL == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.AmountCents != 2990+93 {
		t.Fatalf("amount must include service fee, got %d", sess.AmountCents)
	}

	if len(gateway.created) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gateway.created))
	}
	in := gateway.created[0]
	if in.Metadata["bookId"] != "b-1" || in.Metadata["userId"] != "u-1" {
		t.Fatalf("metadata must bind book and user: %+v", in.Metadata)
	}
	if in.AmountCents != 3083 {
		t.Fatalf("unexpected charge amount: %d", in.AmountCents)
	}
	if in.SuccessURL != "https://shop.test/sucesso?book=apocalipse-comentado" {
		t.Fatalf("unexpected success url: %s", in.SuccessURL)
	}
}

func TestCreateSessionShortCircuitsWhenAlreadyOwned(t *testing.T) {
	gateway := &stubGateway{}
	ledger := &fakeLedger{}
	_, _, _ = ledger.SettleCompleted(context.Background(), pgrepo.SettleInput{
		UserID: "u-1", BookID: "b-1", PaymentReference: "pi_prev",
	})

	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	sess, err := svc.CreateSession(context.Background(), "u-1", "", "b-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !sess.AlreadyOwned {
		t.Fatalf("expected already owned flag")
	}
	if len(gateway.created) != 0 {
		t.Fatalf("gateway must not be called for owned book")
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	svc := NewService(&stubGateway{}, &stubBooks{book: testBook()}, &fakeLedger{}, testConfig())
	svc.AttachLimiter(&stubLimiter{allowed: false, retryAfter: 42})

	_, err := svc.CreateSession(context.Background(), "u-1", "", "b-1")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.RetryAfterSec != 42 {
		t.Fatalf("unexpected retry_after: %d", rl.RetryAfterSec)
	}
}

func TestWebhookSettlesOnceAcrossReplays(t *testing.T) {
	ledger := &fakeLedger{}
	gateway := &stubGateway{event: stripeinfra.Event{
		Type:    stripeinfra.EventCheckoutCompleted,
		Session: paidSession("pi_1"),
	}}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	first, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !first.Applied {
		t.Fatalf("first delivery must settle the purchase")
	}

	replay, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process webhook replay: %v", err)
	}
	if replay.Applied {
		t.Fatalf("replay must be a no-op")
	}
	if replay.PurchaseID != first.PurchaseID {
		t.Fatalf("replay resolved a different purchase: %s vs %s", replay.PurchaseID, first.PurchaseID)
	}
	if ledger.completedCount("u-1", "b-1") != 1 {
		t.Fatalf("expected exactly one completed purchase")
	}
}

func TestWebhookIgnoresUnpaidCompletedSession(t *testing.T) {
	ledger := &fakeLedger{}
	sess := paidSession("pi_2")
	sess.Paid = false
	gateway := &stubGateway{event: stripeinfra.Event{
		Type:    stripeinfra.EventCheckoutCompleted,
		Session: sess,
	}}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	outcome, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Skipped || outcome.Applied {
		t.Fatalf("unpaid completed session must be skipped: %+v", outcome)
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("ledger must stay untouched")
	}
}

func TestWebhookAsyncFailureThenLateSuccess(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.rows = append(ledger.rows, &pgrepo.PurchaseRecord{
		ID: "p-pending", UserID: "u-1", BookID: "b-1",
		Status: pgrepo.PurchaseStatusPending,
	})

	gateway := &stubGateway{event: stripeinfra.Event{
		Type:    stripeinfra.EventAsyncPaymentFailed,
		Session: paidSession("pi_3"),
	}}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	outcome, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process failed webhook: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("pending purchase must be marked failed")
	}
	if ledger.rows[0].Status != pgrepo.PurchaseStatusFailed {
		t.Fatalf("expected failed status, got %s", ledger.rows[0].Status)
	}

	// A late success after the failure still grants the entitlement
	// through a fresh completed row. The failed row stays as history.
	gateway.event = stripeinfra.Event{
		Type:    stripeinfra.EventAsyncPaymentSucceeded,
		Session: paidSession("pi_3"),
	}
	outcome, err = svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process late success webhook: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("late success must settle")
	}
	if ledger.rows[0].Status != pgrepo.PurchaseStatusFailed {
		t.Fatalf("failed row must stay failed")
	}
	if ledger.completedCount("u-1", "b-1") != 1 {
		t.Fatalf("expected one completed purchase after late success")
	}
}

func TestWebhookSkipsSessionWithoutMetadata(t *testing.T) {
	ledger := &fakeLedger{}
	sess := paidSession("pi_4")
	sess.Metadata = map[string]string{}
	gateway := &stubGateway{event: stripeinfra.Event{
		Type:    stripeinfra.EventCheckoutCompleted,
		Session: sess,
	}}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	outcome, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("session without metadata must be acknowledged and skipped")
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("ledger must stay untouched")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	gateway := &stubGateway{verifyErr: stripeinfra.ErrInvalidSignature}
	svc := NewService(gateway, &stubBooks{book: testBook()}, &fakeLedger{}, testConfig())

	if _, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "bad"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySessionSettlesAndConvergesWithWebhook(t *testing.T) {
	ledger := &fakeLedger{}
	gateway := &stubGateway{
		session: paidSession("pi_5"),
		event: stripeinfra.Event{
			Type:    stripeinfra.EventCheckoutCompleted,
			Session: paidSession("pi_5"),
		},
	}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	result, err := svc.VerifySession(context.Background(), "u-1", "cs_pi_5", "b-1")
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if result.PurchaseID == "" || result.AlreadyPurchased {
		t.Fatalf("unexpected verify result: %+v", result)
	}

	// The webhook arriving after the poller settles nothing new.
	outcome, err := svc.ProcessWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("process webhook: %v", err)
	}
	if outcome.Applied {
		t.Fatalf("webhook after verify must be a no-op")
	}
	if ledger.completedCount("u-1", "b-1") != 1 {
		t.Fatalf("expected exactly one completed purchase")
	}
}

func TestVerifySessionRejectsForeignUser(t *testing.T) {
	gateway := &stubGateway{session: paidSession("pi_6")}
	svc := NewService(gateway, &stubBooks{book: testBook()}, &fakeLedger{}, testConfig())

	if _, err := svc.VerifySession(context.Background(), "u-other", "cs_pi_6", "b-1"); !errors.Is(err, ErrForeignSession) {
		t.Fatalf("expected ErrForeignSession, got %v", err)
	}
}

func TestVerifySessionRejectsBookMismatch(t *testing.T) {
	other := testBook()
	other.ID = "b-2"
	other.Slug = "outro-livro"

	ledger := &fakeLedger{}
	gateway := &stubGateway{session: paidSession("pi_8")}
	svc := NewService(gateway, &stubBooks{book: other}, ledger, testConfig())

	// The paid session was opened for b-1; redeeming it against another
	// book must fail instead of granting the wrong entitlement.
	if _, err := svc.VerifySession(context.Background(), "u-1", "cs_pi_8", "outro-livro"); !errors.Is(err, ErrBookMismatch) {
		t.Fatalf("expected ErrBookMismatch, got %v", err)
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("mismatched verify must not touch the ledger")
	}
}

func TestVerifySessionUnpaidFails(t *testing.T) {
	sess := paidSession("pi_7")
	sess.Paid = false
	ledger := &fakeLedger{}
	gateway := &stubGateway{session: sess}
	svc := NewService(gateway, &stubBooks{book: testBook()}, ledger, testConfig())

	if _, err := svc.VerifySession(context.Background(), "u-1", "cs_pi_7", "b-1"); !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if len(ledger.rows) != 0 {
		t.Fatalf("unpaid verify must not touch the ledger")
	}
}
