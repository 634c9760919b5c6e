package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/metrics"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

const (
	testCustomerID      uint = 10
	testOtherCustomerID uint = 11
	testDriverID        uint = 20
	testOtherDriverID   uint = 21
	testAdminID         uint = 30
)

type stepClock struct {
	at time.Time
}

// Now 每次调用前进一小时，保证写入时间严格递增
func (c *stepClock) Now() time.Time {
	c.at = c.at.Add(time.Hour)
	return c.at
}

type syncTestEnv struct {
	svc          *SyncService
	db           *gorm.DB
	clock        *stepClock
	deliveryRepo *repository.GormDeliveryRequestRepository
	ledgerRepo   *repository.GormSyncLedgerRepository
}

func setupSyncServiceTest(t *testing.T) *syncTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:sync_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	seedSyncUser(t, db, testCustomerID, constants.UserRoleCustomer)
	seedSyncUser(t, db, testOtherCustomerID, constants.UserRoleCustomer)
	seedSyncUser(t, db, testDriverID, constants.UserRoleDriver)
	seedSyncUser(t, db, testOtherDriverID, constants.UserRoleDriver)
	seedSyncUser(t, db, testAdminID, constants.UserRoleAdmin)

	cfg := config.SyncConfig{
		MaxBatchSize:      5,
		StaleWriteRetries: 1,
		IdentityLockTTLMS: 1000,
		PendingListLimit:  20,
	}
	deliveryRepo := repository.NewDeliveryRequestRepository(db)
	ledgerRepo := repository.NewSyncLedgerRepository(db)
	identity := NewSyncIdentityMapper(cfg, deliveryRepo, repository.NewSyncIdentityRepository(db), nil)
	ledger := NewSyncLedgerService(ledgerRepo, nil)
	svc := NewSyncService(cfg, deliveryRepo, repository.NewUserRepository(db), identity, ledger)
	clock := &stepClock{at: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return &syncTestEnv{svc: svc, db: db, clock: clock, deliveryRepo: deliveryRepo, ledgerRepo: ledgerRepo}
}

func seedSyncUser(t *testing.T, db *gorm.DB, id uint, role string) {
	t.Helper()
	user := models.User{
		ID:           id,
		Email:        fmt.Sprintf("sync_user_%d@example.com", id),
		PasswordHash: "hash",
		DisplayName:  fmt.Sprintf("User %d", id),
		Phone:        "555-0100",
		Role:         role,
		Status:       constants.UserStatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
}

func customer() SyncUser { return SyncUser{ID: testCustomerID, Role: constants.UserRoleCustomer} }

func createItem(localID string) PendingSyncItem {
	return PendingSyncItem{
		ClientLocalID:    localID,
		Operation:        constants.SyncOperationCreate,
		ClientModifiedAt: time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC),
		Fields: &DeliveryFields{
			PickupAddress:    strPtr("1 Market St"),
			DropoffAddress:   strPtr("500 Howard St"),
			PickupLatitude:   models.NewCoordinate(37.78825),
			PickupLongitude:  models.NewCoordinate(-122.4324),
			DropoffLatitude:  models.NewCoordinate(37.78925),
			DropoffLongitude: models.NewCoordinate(-122.4344),
			Status:           strPtr(constants.DeliveryStatusPending),
		},
	}
}

func (e *syncTestEnv) mustCreate(t *testing.T, localID string) *models.DeliveryRequest {
	t.Helper()
	result, err := e.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{createItem(localID)})
	if err != nil {
		t.Fatalf("reconcile create failed: %v", err)
	}
	outcome := result.Outcomes[0]
	if outcome.Kind != constants.SyncOutcomeSynced || outcome.ServerID == nil {
		t.Fatalf("create outcome want synced got %+v", outcome)
	}
	return e.mustGet(t, *outcome.ServerID)
}

func (e *syncTestEnv) mustGet(t *testing.T, id uint) *models.DeliveryRequest {
	t.Helper()
	req, err := e.deliveryRepo.GetByID(id)
	if err != nil || req == nil {
		t.Fatalf("get delivery %d failed: %v", id, err)
	}
	return req
}

func (e *syncTestEnv) ledgerFor(t *testing.T, batchID string) []models.SyncLedgerEntry {
	t.Helper()
	entries, _, err := e.ledgerRepo.List(repository.SyncLedgerListFilter{BatchID: batchID, Page: 1, PageSize: 100})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	return entries
}

func TestReconcileCreateExampleScenario(t *testing.T) {
	env := setupSyncServiceTest(t)
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{createItem("local_1")})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("outcomes want 1 got %d", len(result.Outcomes))
	}
	outcome := result.Outcomes[0]
	if outcome.LocalID != "local_1" || outcome.Kind != constants.SyncOutcomeSynced || outcome.ServerID == nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if result.Summary.Synced != 1 || result.Summary.Total != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}

	req := env.mustGet(t, *outcome.ServerID)
	if req.CustomerID != testCustomerID || req.Status != constants.DeliveryStatusPending {
		t.Fatalf("unexpected record %+v", req)
	}
	if req.PickupLatitude.String() != "37.78825" || req.DropoffLongitude.String() != "-122.4344" {
		t.Fatalf("coordinates not persisted: %s %s", req.PickupLatitude.String(), req.DropoffLongitude.String())
	}
	if req.CustomerName != "User 10" {
		t.Fatalf("customer name want fallback got %q", req.CustomerName)
	}
	if req.SyncStatus != constants.SyncStatusSynced || req.SyncedAt == nil || req.SyncedAt.Before(req.UpdatedAt) {
		t.Fatalf("synced record must carry synced_at >= updated_at: %+v", req)
	}

	entries := env.ledgerFor(t, result.BatchID)
	if len(entries) != 1 || entries[0].Outcome != constants.SyncOutcomeSynced || *entries[0].DeliveryRequestID != req.ID {
		t.Fatalf("unexpected ledger %+v", entries)
	}
}

func TestReconcileCreateIsIdempotent(t *testing.T) {
	env := setupSyncServiceTest(t)
	ctx := context.Background()

	first, err := env.svc.Reconcile(ctx, customer(), []PendingSyncItem{createItem("local_dup"), createItem("local_dup")})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	a, b := first.Outcomes[0], first.Outcomes[1]
	if a.ServerID == nil || b.ServerID == nil || *a.ServerID != *b.ServerID {
		t.Fatalf("same batch duplicate must share durable id: %+v %+v", a, b)
	}
	if b.Kind != constants.SyncOutcomeSynced {
		t.Fatalf("duplicate outcome want synced got %s", b.Kind)
	}

	retry, err := env.svc.Reconcile(ctx, customer(), []PendingSyncItem{createItem("local_dup")})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if *retry.Outcomes[0].ServerID != *a.ServerID {
		t.Fatalf("retry want id %d got %d", *a.ServerID, *retry.Outcomes[0].ServerID)
	}

	var count int64
	env.db.Model(&models.DeliveryRequest{}).Count(&count)
	if count != 1 {
		t.Fatalf("delivery rows want 1 got %d", count)
	}
	var mappings int64
	env.db.Model(&models.SyncIdentityMapping{}).Count(&mappings)
	if mappings != 1 {
		t.Fatalf("mapping rows want 1 got %d", mappings)
	}
}

func TestReconcileLedgerCompleteness(t *testing.T) {
	env := setupSyncServiceTest(t)
	ctx := context.Background()
	foreign, err := env.svc.Reconcile(ctx, SyncUser{ID: testOtherCustomerID, Role: constants.UserRoleCustomer},
		[]PendingSyncItem{createItem("foreign")})
	if err != nil {
		t.Fatalf("seed foreign failed: %v", err)
	}
	foreignID := *foreign.Outcomes[0].ServerID
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	items := []PendingSyncItem{
		createItem("ok_1"),
		{ClientLocalID: "missing", ServerID: 9999, ClientModifiedAt: base, Fields: &DeliveryFields{DeliveryNote: strPtr("x")}},
		{ClientLocalID: "bad", Operation: "delete"},
		{ClientLocalID: "not_mine", ServerID: foreignID, ClientModifiedAt: base, Fields: &DeliveryFields{DeliveryNote: strPtr("x")}},
	}
	result, err := env.svc.Reconcile(ctx, customer(), items)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	wantReasons := []string{"", constants.SyncReasonNotFound, constants.SyncReasonInvalidItem, constants.SyncReasonForbidden}
	for i, outcome := range result.Outcomes {
		if outcome.LocalID != items[i].ClientLocalID {
			t.Fatalf("outcome %d out of order: %s", i, outcome.LocalID)
		}
		if outcome.Reason != wantReasons[i] {
			t.Fatalf("outcome %d reason want %q got %q", i, wantReasons[i], outcome.Reason)
		}
	}
	if result.Summary.Failed != 3 || result.Summary.Synced != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}

	entries := env.ledgerFor(t, result.BatchID)
	if len(entries) != len(items) {
		t.Fatalf("ledger entries want %d got %d", len(items), len(entries))
	}
	for i, entry := range entries {
		if entry.ClientLocalID != items[i].ClientLocalID || entry.Outcome != result.Outcomes[i].Kind {
			t.Fatalf("ledger entry %d mismatch: %+v", i, entry)
		}
	}

	untouched := env.mustGet(t, foreignID)
	if untouched.DeliveryNote != "" || untouched.SyncStatus != constants.SyncStatusSynced {
		t.Fatalf("forbidden update must not touch record: %+v", untouched)
	}
}

func TestReconcileStatusNeverRegresses(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "mono")
	if _, err := env.deliveryRepo.UpdateStatus(req.ID, constants.DeliveryStatusCompleted, env.clock.Now()); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	for _, attempted := range []string{constants.DeliveryStatusPending, constants.DeliveryStatusInProgress, constants.DeliveryStatusCancelled} {
		item := PendingSyncItem{
			ClientLocalID:    "mono",
			ServerID:         req.ID,
			ClientModifiedAt: env.clock.Now(),
			Fields:           &DeliveryFields{Status: strPtr(attempted)},
			TouchedFields:    []string{constants.DeliveryFieldStatus},
		}
		result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		outcome := result.Outcomes[0]
		if outcome.Kind != constants.SyncOutcomeConflict {
			t.Fatalf("attempted %s want conflict got %+v", attempted, outcome)
		}
		if outcome.Resolved == nil || outcome.Resolved.Status != constants.DeliveryStatusCompleted {
			t.Fatalf("resolved status want completed got %+v", outcome.Resolved)
		}
		if len(outcome.Rejected) != 1 || outcome.Rejected[0].Attempted != attempted {
			t.Fatalf("want rejected %s got %+v", attempted, outcome.Rejected)
		}
		if got := env.mustGet(t, req.ID).Status; got != constants.DeliveryStatusCompleted {
			t.Fatalf("stored status want completed got %s", got)
		}
	}
}

func TestReconcileDisjointDeltasBothApplied(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "disjoint")
	if _, err := env.deliveryRepo.AssignDriver(req.ID, testDriverID, testAdminID, env.clock.Now()); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	base := env.clock.Now()
	if _, err := env.deliveryRepo.UpdateStatus(req.ID, constants.DeliveryStatusInProgress, env.clock.Now()); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	item := PendingSyncItem{
		ClientLocalID:    "disjoint",
		ServerID:         req.ID,
		ClientModifiedAt: base,
		Fields:           &DeliveryFields{DeliveryNote: strPtr("gate code 1234")},
		TouchedFields:    []string{constants.DeliveryFieldDeliveryNote},
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("want synced got %+v", result.Outcomes[0])
	}
	got := env.mustGet(t, req.ID)
	if got.Status != constants.DeliveryStatusInProgress || got.DeliveryNote != "gate code 1234" {
		t.Fatalf("both changes must apply, got status=%s note=%q", got.Status, got.DeliveryNote)
	}
}

func TestReconcileUpdateExampleScenario(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "req_1")
	if _, err := env.deliveryRepo.AssignDriver(req.ID, testDriverID, testAdminID, env.clock.Now()); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	t1 := env.clock.Now()
	// 客户端离线期间管理员改派司机，状态仍为 assigned
	if _, err := env.deliveryRepo.AssignDriver(req.ID, testOtherDriverID, testAdminID, env.clock.Now()); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}

	item := PendingSyncItem{
		ClientLocalID:    "req_1",
		ServerID:         req.ID,
		ClientModifiedAt: t1,
		Fields:           &DeliveryFields{Status: strPtr(constants.DeliveryStatusCompleted)},
		TouchedFields:    []string{constants.DeliveryFieldStatus},
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("want synced got %+v", result.Outcomes[0])
	}
	got := env.mustGet(t, req.ID)
	if got.Status != constants.DeliveryStatusCompleted {
		t.Fatalf("status want completed got %s", got.Status)
	}
	if got.DriverID == nil || *got.DriverID != testOtherDriverID {
		t.Fatalf("driver want %d got %v", testOtherDriverID, got.DriverID)
	}
}

func TestReconcileDriverUpdatesAssignedRequest(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "drv")
	if _, err := env.deliveryRepo.AssignDriver(req.ID, testDriverID, testAdminID, env.clock.Now()); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	driver := SyncUser{ID: testDriverID, Role: constants.UserRoleDriver}
	item := PendingSyncItem{
		ClientLocalID:    "drv-local",
		ServerID:         req.ID,
		ClientModifiedAt: env.clock.Now(),
		Fields:           &DeliveryFields{Status: strPtr(constants.DeliveryStatusInProgress)},
	}
	result, err := env.svc.Reconcile(context.Background(), driver, []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("want synced got %+v", result.Outcomes[0])
	}

	other := SyncUser{ID: testOtherDriverID, Role: constants.UserRoleDriver}
	result, err = env.svc.Reconcile(context.Background(), other, []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Reason != constants.SyncReasonForbidden {
		t.Fatalf("unassigned driver want forbidden got %+v", result.Outcomes[0])
	}

	result, err = env.svc.Reconcile(context.Background(), driver, []PendingSyncItem{createItem("drv-create")})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Reason != constants.SyncReasonForbidden {
		t.Fatalf("driver create want forbidden got %+v", result.Outcomes[0])
	}
}

func TestReconcileWholeRecordKeepsNewerServerValue(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "whole")
	base := env.clock.Now()
	// 客户端离线期间服务端取消了配送单，备注字段本身未改
	if _, err := env.deliveryRepo.UpdateStatus(req.ID, constants.DeliveryStatusCancelled, env.clock.Now()); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	item := PendingSyncItem{
		ClientLocalID:    "whole",
		ServerID:         req.ID,
		ClientModifiedAt: base,
		Fields:           &DeliveryFields{DeliveryNote: strPtr("client note")},
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	outcome := result.Outcomes[0]
	if outcome.Kind != constants.SyncOutcomeConflict {
		t.Fatalf("want conflict got %+v", outcome)
	}
	if len(outcome.ConflictFields) != 1 || outcome.ConflictFields[0] != constants.DeliveryFieldDeliveryNote {
		t.Fatalf("conflict fields want [delivery_note] got %v", outcome.ConflictFields)
	}
	got := env.mustGet(t, req.ID)
	if got.DeliveryNote != "" || got.Status != constants.DeliveryStatusCancelled {
		t.Fatalf("server values must be kept, got note=%q status=%s", got.DeliveryNote, got.Status)
	}
	if got.SyncedAt == nil || got.SyncedAt.Before(got.UpdatedAt) {
		t.Fatalf("synced_at %v must not be before updated_at %v", got.SyncedAt, got.UpdatedAt)
	}
}

func TestReconcileConcurrentCreatesShareOneIdentity(t *testing.T) {
	env := setupSyncServiceTest(t)
	fixed := env.clock.Now()
	env.svc.now = func() time.Time { return fixed }
	const workers = 8
	var wg sync.WaitGroup
	outcomes := make([]SyncOutcome, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{createItem("shared_local")})
			errs[i] = err
			if err == nil {
				outcomes[i] = result.Outcomes[0]
			}
		}(i)
	}
	wg.Wait()

	var firstID uint
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("reconcile %d failed: %v", i, errs[i])
		}
		if outcomes[i].Kind != constants.SyncOutcomeSynced || outcomes[i].ServerID == nil {
			t.Fatalf("outcome %d want synced got %+v", i, outcomes[i])
		}
		if firstID == 0 {
			firstID = *outcomes[i].ServerID
		}
		if *outcomes[i].ServerID != firstID {
			t.Fatalf("outcome %d got id %d want %d", i, *outcomes[i].ServerID, firstID)
		}
	}
	var rows, mappings int64
	env.db.Model(&models.DeliveryRequest{}).Where("client_local_id = ?", "shared_local").Count(&rows)
	env.db.Model(&models.SyncIdentityMapping{}).Where("client_local_id = ?", "shared_local").Count(&mappings)
	if rows != 1 || mappings != 1 {
		t.Fatalf("want one request and one mapping got rows=%d mappings=%d", rows, mappings)
	}
}

func TestResolveCreateReusesMappingWrittenDuringBuild(t *testing.T) {
	env := setupSyncServiceTest(t)
	user := &models.User{ID: testCustomerID, DisplayName: "User 10"}
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	build := func() (*models.DeliveryRequest, error) {
		return buildCreatedDelivery(user, createItem("raced"), at), nil
	}

	var rivalID uint
	result, err := env.svc.identity.ResolveCreate(context.Background(), testCustomerID, "raced", func() (*models.DeliveryRequest, error) {
		// 本批次构造记录期间，另一批次抢先完成了同一本地标识的创建
		rival, err := env.svc.identity.ResolveCreate(context.Background(), testCustomerID, "raced", build)
		if err != nil {
			return nil, err
		}
		rivalID = rival.DeliveryRequestID
		return build()
	})
	if err != nil {
		t.Fatalf("resolve create failed: %v", err)
	}
	if rivalID == 0 || result.DeliveryRequestID != rivalID || !result.Reused {
		t.Fatalf("want reuse of %d got %+v", rivalID, result)
	}
	var rows int64
	env.db.Model(&models.DeliveryRequest{}).Where("client_local_id = ?", "raced").Count(&rows)
	if rows != 1 {
		t.Fatalf("rolled back insert must not persist, rows=%d", rows)
	}
}

func TestReconcilePartialFailureIsolation(t *testing.T) {
	env := setupSyncServiceTest(t)
	if err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_delivery", func(tx *gorm.DB) {
		if req, ok := tx.Statement.Dest.(*models.DeliveryRequest); ok && req.ClientLocalID == "boom" {
			_ = tx.AddError(errors.New("disk unavailable"))
		}
	}); err != nil {
		t.Fatalf("register callback failed: %v", err)
	}

	items := []PendingSyncItem{createItem("a"), createItem("boom"), createItem("c")}
	result, err := env.svc.Reconcile(context.Background(), customer(), items)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Kind != constants.SyncOutcomeSynced || result.Outcomes[2].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("unaffected items must succeed: %+v", result.Outcomes)
	}
	failed := result.Outcomes[1]
	if failed.Kind != constants.SyncOutcomeFailed || failed.Reason != constants.SyncReasonStorageUnavailable || failed.ServerID != nil {
		t.Fatalf("want storage failure without durable id got %+v", failed)
	}
	var mappings int64
	env.db.Model(&models.SyncIdentityMapping{}).Where("client_local_id = ?", "boom").Count(&mappings)
	if mappings != 0 {
		t.Fatalf("failed create must not leave a mapping")
	}
}

func TestReconcileRecoversFromPanic(t *testing.T) {
	env := setupSyncServiceTest(t)
	if err := env.db.Callback().Create().Before("gorm:create").Register("test:panic_delivery", func(tx *gorm.DB) {
		if req, ok := tx.Statement.Dest.(*models.DeliveryRequest); ok && req.ClientLocalID == "panic" {
			panic("unexpected")
		}
	}); err != nil {
		t.Fatalf("register callback failed: %v", err)
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{createItem("panic"), createItem("fine")})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Reason != constants.SyncReasonInternal {
		t.Fatalf("want internal_error got %+v", result.Outcomes[0])
	}
	if result.Outcomes[1].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("item after panic want synced got %+v", result.Outcomes[1])
	}
	if len(env.ledgerFor(t, result.BatchID)) != 2 {
		t.Fatalf("ledger must record both items")
	}
}

func registerRevisionRace(t *testing.T, db *gorm.DB, times int) {
	t.Helper()
	fired := 0
	if err := db.Callback().Update().Before("gorm:update").Register("test:revision_race", func(tx *gorm.DB) {
		if tx.Statement.Table != "delivery_requests" || fired >= times {
			return
		}
		fired++
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE delivery_requests SET revision = revision + 1")
	}); err != nil {
		t.Fatalf("register callback failed: %v", err)
	}
}

func TestReconcileRetriesStaleWriteOnce(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "stale")
	registerRevisionRace(t, env.db, 1)
	before := testutil.ToFloat64(metrics.SyncStaleWriteRetriesTotal)

	item := PendingSyncItem{
		ClientLocalID:    "stale",
		ServerID:         req.ID,
		ClientModifiedAt: env.clock.Now(),
		Fields:           &DeliveryFields{DeliveryNote: strPtr("second try")},
		TouchedFields:    []string{constants.DeliveryFieldDeliveryNote},
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcomes[0].Kind != constants.SyncOutcomeSynced {
		t.Fatalf("want synced after retry got %+v", result.Outcomes[0])
	}
	if got := testutil.ToFloat64(metrics.SyncStaleWriteRetriesTotal) - before; got != 1 {
		t.Fatalf("stale retries want 1 got %v", got)
	}
	if env.mustGet(t, req.ID).DeliveryNote != "second try" {
		t.Fatalf("note not applied")
	}
}

func TestReconcileStaleWriteExhausted(t *testing.T) {
	env := setupSyncServiceTest(t)
	req := env.mustCreate(t, "stale")
	registerRevisionRace(t, env.db, 100)

	item := PendingSyncItem{
		ClientLocalID:    "stale",
		ServerID:         req.ID,
		ClientModifiedAt: env.clock.Now(),
		Fields:           &DeliveryFields{DeliveryNote: strPtr("never")},
	}
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{item})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	outcome := result.Outcomes[0]
	if outcome.Kind != constants.SyncOutcomeFailed || outcome.Reason != constants.SyncReasonStaleWrite {
		t.Fatalf("want stale_write failure got %+v", outcome)
	}
	got := env.mustGet(t, req.ID)
	if got.SyncStatus != constants.SyncStatusFailed || !got.PendingSync {
		t.Fatalf("record must be marked failed, got %s pending=%v", got.SyncStatus, got.PendingSync)
	}
	if got.DeliveryNote != "" {
		t.Fatalf("lost race must not write fields")
	}
}

func TestReconcileLedgerFailureDoesNotFailItems(t *testing.T) {
	env := setupSyncServiceTest(t)
	if err := env.db.Migrator().DropTable(&models.SyncLedgerEntry{}); err != nil {
		t.Fatalf("drop ledger failed: %v", err)
	}
	before := testutil.ToFloat64(metrics.SyncLedgerAppendFailuresTotal)
	result, err := env.svc.Reconcile(context.Background(), customer(), []PendingSyncItem{createItem("l1"), createItem("l2")})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Summary.Synced != 2 {
		t.Fatalf("ledger failure must not fail items: %+v", result.Summary)
	}
	if got := testutil.ToFloat64(metrics.SyncLedgerAppendFailuresTotal) - before; got != 2 {
		t.Fatalf("ledger failures want 2 got %v", got)
	}
}

func TestReconcileBatchLevelErrors(t *testing.T) {
	env := setupSyncServiceTest(t)
	ctx := context.Background()
	if _, err := env.svc.Reconcile(ctx, SyncUser{Role: constants.UserRoleCustomer}, nil); !errors.Is(err, ErrSyncUserInvalid) {
		t.Fatalf("want ErrSyncUserInvalid got %v", err)
	}
	if _, err := env.svc.Reconcile(ctx, SyncUser{ID: testAdminID, Role: constants.UserRoleAdmin}, nil); !errors.Is(err, ErrSyncRoleForbidden) {
		t.Fatalf("want ErrSyncRoleForbidden got %v", err)
	}
	items := make([]PendingSyncItem, 6)
	if _, err := env.svc.Reconcile(ctx, customer(), items); !errors.Is(err, ErrSyncBatchTooLarge) {
		t.Fatalf("want ErrSyncBatchTooLarge got %v", err)
	}
	result, err := env.svc.Reconcile(ctx, customer(), nil)
	if err != nil {
		t.Fatalf("empty batch want ok got %v", err)
	}
	if len(result.Outcomes) != 0 || result.BatchID == "" {
		t.Fatalf("unexpected empty batch result %+v", result)
	}
}

func TestGetStatusScopedByRole(t *testing.T) {
	env := setupSyncServiceTest(t)
	ctx := context.Background()
	first := env.mustCreate(t, "s1")
	env.mustCreate(t, "s2")
	if err := env.deliveryRepo.MarkSyncStatus(first.ID, constants.SyncStatusFailed, env.clock.Now()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := env.deliveryRepo.AssignDriver(first.ID, testDriverID, testAdminID, env.clock.Now()); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	status, err := env.svc.GetStatus(ctx, customer())
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.SyncedCount != 1 || status.FailedCount != 1 || status.PendingCount != 0 {
		t.Fatalf("unexpected customer counts %+v", status)
	}
	if len(status.PendingRequests) != 1 || status.PendingRequests[0].ID != first.ID {
		t.Fatalf("pending requests want [%d] got %+v", first.ID, status.PendingRequests)
	}
	if status.LastSync == nil {
		t.Fatalf("last sync must come from ledger")
	}

	driverStatus, err := env.svc.GetStatus(ctx, SyncUser{ID: testDriverID, Role: constants.UserRoleDriver})
	if err != nil {
		t.Fatalf("driver status failed: %v", err)
	}
	if driverStatus.FailedCount != 1 || driverStatus.SyncedCount != 0 || driverStatus.LastSync != nil {
		t.Fatalf("unexpected driver status %+v", driverStatus)
	}

	if _, err := env.svc.GetStatus(ctx, SyncUser{ID: testAdminID, Role: constants.UserRoleAdmin}); !errors.Is(err, ErrSyncRoleForbidden) {
		t.Fatalf("admin want ErrSyncRoleForbidden got %v", err)
	}
}
