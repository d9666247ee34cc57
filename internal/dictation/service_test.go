package dictation

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/notify"
	"medical-dictation-server/internal/query"
	"medical-dictation-server/internal/search"
	"medical-dictation-server/internal/storage"
	"medical-dictation-server/internal/testutil"
)

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

type env struct {
	db       *gorm.DB
	svc      *Service
	sc       testutil.Scenario
	blobs    *storage.Local
	sender   *captureSender
	notifier *notify.Dispatcher
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.OpenTestDB(t)
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	sender := &captureSender{}
	dispatcher := notify.NewDispatcher(sender, nil, testutil.Logger(), time.Second, nil)
	g := graph.NewStore(db)
	svc := NewService(Deps{
		DB:            db,
		Graph:         g,
		Access:        access.NewEvaluator(db, g, access.SearchByRole),
		Query:         query.NewStore(db),
		Search:        search.NewComposer(db),
		Blobs:         blobs,
		Notifier:      dispatcher,
		Log:           testutil.Logger(),
		MaxAudioBytes: 1024,
	})
	return &env{db: db, svc: svc, sc: testutil.SeedScenario(t, db), blobs: blobs, sender: sender, notifier: dispatcher}
}

func actor(u *models.User) access.Actor { return access.ActorFromUser(u) }

var audio = base64.StdEncoding.EncodeToString([]byte("RIFF....WAVEfmt "))

func (e *env) createVoice(t *testing.T) *models.Voice {
	t.Helper()
	v, err := e.svc.CreateVoice(context.Background(), actor(e.sc.Doctor), VoiceInput{
		PatientID:   e.sc.Patient.ID,
		Title:       "Consultation",
		Filename:    "memo.wav",
		AudioBase64: audio,
	})
	if err != nil {
		t.Fatalf("create voice: %v", err)
	}
	return v
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("got error %v, want %v", err, kind)
	}
}

func TestScenarioEndToEnd(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc

	if err := e.db.Model(sc.Assistant).Update("device_token", "arn:a").Error; err != nil {
		t.Fatalf("device token: %v", err)
	}
	if err := e.db.Model(sc.Assistant2).Update("device_token", "arn:a2").Error; err != nil {
		t.Fatalf("device token: %v", err)
	}

	// D records V about P; both assistants are notified.
	v := e.createVoice(t)
	e.notifier.Wait()
	if len(e.sender.sent) != 1 || len(e.sender.sent[0].Tokens) != 2 {
		t.Fatalf("expected one notification to both assistants, got %+v", e.sender.sent)
	}

	// Before a note exists, A, A2, M, P and D can all read V.
	for _, u := range []*models.User{sc.Assistant, sc.Assistant2, sc.Manager, sc.Patient, sc.Doctor, sc.Superuser} {
		if _, err := e.svc.GetVoice(ctx, actor(u), v.ID); err != nil {
			t.Fatalf("%s reading voice: %v", u.FullName, err)
		}
	}

	// An assistant cannot fetch audio before claiming the voice.
	_, err := e.svc.GetVoiceAudio(ctx, actor(sc.Assistant), v.ID)
	wantKind(t, err, apperr.ErrForbidden)

	// A claims V.
	n, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID, Content: "draft"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	var reloaded models.Voice
	if err := e.db.First(&reloaded, "id = ?", v.ID).Error; err != nil || !reloaded.NoteCreated {
		t.Fatalf("voice not flagged: %+v %v", reloaded, err)
	}

	// A2 loses access to V; A keeps it and may now fetch the audio.
	_, err = e.svc.GetVoice(ctx, actor(sc.Assistant2), v.ID)
	wantKind(t, err, apperr.ErrForbidden)
	if _, err := e.svc.GetVoice(ctx, actor(sc.Assistant), v.ID); err != nil {
		t.Fatalf("author reading voice: %v", err)
	}
	got, err := e.svc.GetVoiceAudio(ctx, actor(sc.Assistant), v.ID)
	if err != nil || got.Filename != "memo.wav" || string(got.Data) != "RIFF....WAVEfmt " {
		t.Fatalf("audio: %+v %v", got, err)
	}

	// A2 attempting a second note is a conflict.
	_, err = e.svc.CreateNote(ctx, actor(sc.Assistant2), NoteInput{VoiceID: v.ID})
	wantKind(t, err, apperr.ErrConflict)

	// A2 cannot read N; M can.
	_, err = e.svc.GetNote(ctx, actor(sc.Assistant2), n.ID)
	wantKind(t, err, apperr.ErrForbidden)
	detail, err := e.svc.GetNote(ctx, actor(sc.Manager), n.ID)
	if err != nil {
		t.Fatalf("manager reading note: %v", err)
	}
	if detail.DoctorFullName != "Doctor D" || detail.PatientFullName != "Patient P" {
		t.Fatalf("detail names: %+v", detail)
	}

	// D validates N and becomes its modifier.
	yes := true
	updated, err := e.svc.UpdateNote(ctx, actor(sc.Doctor), n.ID, NoteUpdate{Validated: &yes})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !updated.Validated || updated.ModifierID == nil || *updated.ModifierID != sc.Doctor.ID || updated.ModifiedAt == nil {
		t.Fatalf("after validation: %+v", updated)
	}

	// A can no longer edit the validated note.
	text := "late edit"
	_, err = e.svc.UpdateNote(ctx, actor(sc.Assistant), n.ID, NoteUpdate{Content: &text})
	wantKind(t, err, apperr.ErrForbidden)

	// D can still edit it.
	if _, err := e.svc.UpdateNote(ctx, actor(sc.Doctor), n.ID, NoteUpdate{Content: &text}); err != nil {
		t.Fatalf("doctor edit after validation: %v", err)
	}
}

func TestCreateVoiceRules(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc

	stranger := testutil.CreateUser(t, e.db, models.RolePatient, "Stranger")
	other := testutil.CreateUser(t, e.db, models.RoleDoctor, "Doctor O")

	cases := []struct {
		name  string
		actor *models.User
		in    VoiceInput
		kind  error
	}{
		{"patient without edge", sc.Doctor, VoiceInput{PatientID: stranger.ID, AudioBase64: audio}, apperr.ErrForbidden},
		{"doctor for someone else", other, VoiceInput{DoctorID: sc.Doctor.ID, PatientID: sc.Patient.ID, AudioBase64: audio}, apperr.ErrForbidden},
		{"assistant", sc.Assistant, VoiceInput{DoctorID: sc.Doctor.ID, PatientID: sc.Patient.ID, AudioBase64: audio}, apperr.ErrForbidden},
		{"unknown patient", sc.Doctor, VoiceInput{PatientID: "missing", AudioBase64: audio}, apperr.ErrNotFound},
		{"patient is a doctor", sc.Doctor, VoiceInput{PatientID: other.ID, AudioBase64: audio}, apperr.ErrNotFound},
		{"empty audio", sc.Doctor, VoiceInput{PatientID: sc.Patient.ID}, apperr.ErrValidation},
		{"bad base64", sc.Doctor, VoiceInput{PatientID: sc.Patient.ID, AudioBase64: "%%%"}, apperr.ErrValidation},
		{"too large", sc.Doctor, VoiceInput{PatientID: sc.Patient.ID,
			AudioBase64: base64.StdEncoding.EncodeToString(make([]byte, 2048))}, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.CreateVoice(ctx, actor(tc.actor), tc.in)
			wantKind(t, err, tc.kind)
		})
	}

	// Superusers may record on behalf of a doctor.
	v, err := e.svc.CreateVoice(ctx, actor(sc.Superuser), VoiceInput{DoctorID: sc.Doctor.ID, PatientID: sc.Patient.ID, AudioBase64: audio})
	if err != nil {
		t.Fatalf("superuser create: %v", err)
	}
	if v.DoctorID != sc.Doctor.ID {
		t.Fatalf("doctor: %s", v.DoctorID)
	}
}

func TestCreateNoteRules(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)

	outsider := testutil.CreateUser(t, e.db, models.RoleAssistant, "Outsider")

	_, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID, AssistantID: sc.Assistant2.ID})
	wantKind(t, err, apperr.ErrForbidden)

	_, err = e.svc.CreateNote(ctx, actor(outsider), NoteInput{VoiceID: v.ID})
	wantKind(t, err, apperr.ErrForbidden)

	_, err = e.svc.CreateNote(ctx, actor(sc.Doctor), NoteInput{VoiceID: v.ID, AssistantID: sc.Assistant.ID})
	wantKind(t, err, apperr.ErrForbidden)

	_, err = e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: "missing"})
	wantKind(t, err, apperr.ErrNotFound)

	n, err := e.svc.CreateNote(ctx, actor(sc.Superuser), NoteInput{VoiceID: v.ID, AssistantID: sc.Assistant2.ID})
	if err != nil {
		t.Fatalf("superuser on behalf of assistant: %v", err)
	}
	if n.AssistantID != sc.Assistant2.ID {
		t.Fatalf("assistant: %s", n.AssistantID)
	}
}

func TestConcurrentNoteCreationYieldsOneNote(t *testing.T) {
	e := setup(t)
	v := e.createVoice(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []*models.User{e.sc.Assistant, e.sc.Assistant2} {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			_, errs[i] = e.svc.CreateNote(context.Background(), actor(u), NoteInput{VoiceID: v.ID})
		}(i, u)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var count int64
	e.db.Model(&models.Note{}).Where("voice_id = ?", v.ID).Count(&count)
	if ok != 1 || count != 1 {
		t.Fatalf("successes=%d notes=%d", ok, count)
	}
}

func TestNoteEditRules(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	n, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	text := "edited by manager"
	updated, err := e.svc.UpdateNote(ctx, actor(sc.Manager), n.ID, NoteUpdate{Content: &text})
	if err != nil {
		t.Fatalf("manager edit: %v", err)
	}
	if updated.Content != text || *updated.ModifierID != sc.Manager.ID {
		t.Fatalf("after manager edit: %+v", updated)
	}

	yes := true
	_, err = e.svc.UpdateNote(ctx, actor(sc.Assistant), n.ID, NoteUpdate{Validated: &yes})
	wantKind(t, err, apperr.ErrForbidden)

	_, err = e.svc.UpdateNote(ctx, actor(sc.Assistant2), n.ID, NoteUpdate{Content: &text})
	wantKind(t, err, apperr.ErrForbidden)

	if _, err := e.svc.UpdateNote(ctx, actor(sc.Superuser), n.ID, NoteUpdate{Validated: &yes}); err != nil {
		t.Fatalf("superuser validates: %v", err)
	}
	// The superuser is now the modifier; the manager lost edit rights on the validated note.
	_, err = e.svc.UpdateNote(ctx, actor(sc.Manager), n.ID, NoteUpdate{Content: &text})
	wantKind(t, err, apperr.ErrForbidden)
}

func TestDeleteVoiceCascades(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	n, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := e.svc.CreateRemarque(ctx, actor(sc.Doctor), RemarqueInput{NoteID: n.ID, Remarque: "check dosage"}); err != nil {
		t.Fatalf("create remarque: %v", err)
	}

	_, err = e.svc.DeleteVoice(ctx, actor(sc.Manager), v.ID)
	wantKind(t, err, apperr.ErrForbidden)

	if _, err := e.svc.DeleteVoice(ctx, actor(sc.Doctor), v.ID); err != nil {
		t.Fatalf("delete voice: %v", err)
	}
	for _, model := range []any{&models.Voice{}, &models.Note{}, &models.RemarqueNote{}} {
		var count int64
		e.db.Model(model).Count(&count)
		if count != 0 {
			t.Fatalf("%T rows left: %d", model, count)
		}
	}
	if _, err := e.blobs.Get(ctx, v.Path); !errors.Is(err, storage.ErrNoObject) {
		t.Fatalf("recording not removed: %v", err)
	}
}

func TestDeleteNoteKeepsVoice(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	n, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	_, err = e.svc.DeleteNote(ctx, actor(sc.Assistant), n.ID)
	wantKind(t, err, apperr.ErrForbidden)

	if _, err := e.svc.DeleteNote(ctx, actor(sc.Doctor), n.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	var reloaded models.Voice
	if err := e.db.First(&reloaded, "id = ?", v.ID).Error; err != nil {
		t.Fatalf("voice gone: %v", err)
	}
	if reloaded.NoteCreated {
		t.Fatalf("voice still flagged as transcribed")
	}
	// The voice is open again to every assistant of the doctor.
	if _, err := e.svc.CreateNote(ctx, actor(sc.Assistant2), NoteInput{VoiceID: v.ID}); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
}

func TestRemarques(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	n, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	_, err = e.svc.CreateRemarque(ctx, actor(sc.Doctor), RemarqueInput{NoteID: n.ID, CreatorID: sc.Manager.ID, Remarque: "x"})
	wantKind(t, err, apperr.ErrForbidden)
	_, err = e.svc.CreateRemarque(ctx, actor(sc.Assistant2), RemarqueInput{NoteID: n.ID, Remarque: "x"})
	wantKind(t, err, apperr.ErrForbidden)
	_, err = e.svc.CreateRemarque(ctx, actor(sc.Doctor), RemarqueInput{NoteID: n.ID, Remarque: "  "})
	wantKind(t, err, apperr.ErrValidation)

	first, err := e.svc.CreateRemarque(ctx, actor(sc.Doctor), RemarqueInput{NoteID: n.ID, Remarque: "first"})
	if err != nil {
		t.Fatalf("doctor remarque: %v", err)
	}
	if err := e.db.Model(first).Update("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age remarque: %v", err)
	}
	if _, err := e.svc.CreateRemarque(ctx, actor(sc.Manager), RemarqueInput{NoteID: n.ID, Remarque: "second"}); err != nil {
		t.Fatalf("manager remarque: %v", err)
	}

	list, err := e.svc.ListRemarques(ctx, actor(sc.Assistant), n.ID, query.Page{Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Remarque != "second" {
		t.Fatalf("remarques: %+v", list)
	}
	_, err = e.svc.ListRemarques(ctx, actor(sc.Patient), n.ID, query.Page{})
	wantKind(t, err, apperr.ErrForbidden)

	seen, err := e.svc.MarkRemarqueSeen(ctx, actor(sc.Assistant), first.ID, true)
	if err != nil || !seen.Seen {
		t.Fatalf("mark seen: %+v %v", seen, err)
	}
}

func TestRelationships(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	m2 := testutil.CreateUser(t, e.db, models.RoleManager, "Manager M2")

	_, err := e.svc.Link(ctx, actor(sc.Doctor), graph.DoctorManager, sc.Doctor.ID, m2.ID)
	wantKind(t, err, apperr.ErrForbidden)

	_, err = e.svc.Link(ctx, actor(sc.Superuser), graph.DoctorManager, sc.Doctor.ID, sc.Assistant.ID)
	wantKind(t, err, apperr.ErrNotFound)

	first, err := e.svc.Link(ctx, actor(sc.Superuser), graph.DoctorManager, sc.Doctor.ID, m2.ID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	again, err := e.svc.Link(ctx, actor(sc.Superuser), graph.DoctorManager, sc.Doctor.ID, m2.ID)
	if err != nil || again.ID != first.ID {
		t.Fatalf("relink: %+v %v", again, err)
	}

	managers, err := e.svc.Related(ctx, actor(sc.Doctor), graph.DoctorManager, sc.Doctor.ID, graph.Forward)
	if err != nil || len(managers) != 2 {
		t.Fatalf("managers of doctor: %d %v", len(managers), err)
	}
	_, err = e.svc.Related(ctx, actor(sc.Assistant), graph.DoctorManager, sc.Doctor.ID, graph.Forward)
	wantKind(t, err, apperr.ErrForbidden)

	// Doctors manage their own patient edges.
	p2 := testutil.CreateUser(t, e.db, models.RolePatient, "Patient P2")
	if _, err := e.svc.Link(ctx, actor(sc.Doctor), graph.DoctorPatient, sc.Doctor.ID, p2.ID); err != nil {
		t.Fatalf("doctor links patient: %v", err)
	}
	if _, err := e.svc.Unlink(ctx, actor(sc.Doctor), graph.DoctorPatient, sc.Doctor.ID, p2.ID); err != nil {
		t.Fatalf("doctor unlinks patient: %v", err)
	}
	_, err = e.svc.Unlink(ctx, actor(sc.Doctor), graph.DoctorPatient, sc.Doctor.ID, p2.ID)
	wantKind(t, err, apperr.ErrNotFound)
}

func TestPatients(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	birth := time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC)

	_, err := e.svc.CreatePatient(ctx, actor(sc.Manager), PatientInput{FullName: "Nope"})
	wantKind(t, err, apperr.ErrForbidden)

	p, err := e.svc.CreatePatient(ctx, actor(sc.Doctor), PatientInput{FullName: "Jane Roe", BirthDate: &birth})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if p.IsActive || p.Role != models.RolePatient || p.Email == "" {
		t.Fatalf("patient: %+v", p)
	}
	linked, err := graph.NewStore(e.db).HasEdge(ctx, graph.DoctorPatient, sc.Doctor.ID, p.ID)
	if err != nil || !linked {
		t.Fatalf("doctor-patient edge missing: %v", err)
	}

	_, err = e.svc.CreatePatient(ctx, actor(sc.Doctor), PatientInput{FullName: "Jane Roe", BirthDate: &birth})
	wantKind(t, err, apperr.ErrConflict)
	_, err = e.svc.CreatePatient(ctx, actor(sc.Doctor), PatientInput{FullName: "John Roe", Email: sc.Patient.Email})
	wantKind(t, err, apperr.ErrConflict)

	view, err := e.svc.GetPatient(ctx, actor(sc.Doctor), p.ID)
	if err != nil {
		t.Fatalf("doctor view: %v", err)
	}
	if _, ok := view.(models.UserSanitized); !ok {
		t.Fatalf("doctor should see the full record, got %T", view)
	}
	view, err = e.svc.GetPatient(ctx, actor(sc.Manager), p.ID)
	if err != nil {
		t.Fatalf("manager view: %v", err)
	}
	if _, ok := view.(models.UserSummary); !ok {
		t.Fatalf("manager should see a summary, got %T", view)
	}
	_, err = e.svc.GetPatient(ctx, actor(sc.Assistant), p.ID)
	wantKind(t, err, apperr.ErrForbidden)

	name := "Jane Doe"
	updated, err := e.svc.UpdatePatient(ctx, actor(sc.Doctor), p.ID, PatientUpdate{FullName: &name})
	if err != nil || updated.FullName != name {
		t.Fatalf("update patient: %+v %v", updated, err)
	}
	_, err = e.svc.UpdatePatient(ctx, actor(sc.Manager), p.ID, PatientUpdate{FullName: &name})
	wantKind(t, err, apperr.ErrForbidden)
}

func TestListingsFollowAccess(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	e.createVoice(t)
	if _, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID, Content: "fracture of the left radius"}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	page := query.Page{Limit: 5}
	pending := false

	queue, err := e.svc.ListVoices(ctx, actor(sc.Assistant2), access.Anchor{Role: models.RoleAssistant, ID: sc.Assistant2.ID},
		query.Facets{NoteCreated: &pending}, page)
	if err != nil || len(queue) != 1 {
		t.Fatalf("assistant queue: %d %v", len(queue), err)
	}
	n, err := e.svc.CountVoices(ctx, actor(sc.Manager), access.Anchor{Role: models.RoleManager, ID: sc.Manager.ID}, query.Facets{})
	if err != nil || n != 2 {
		t.Fatalf("manager count: %d %v", n, err)
	}

	// Someone else's listing is empty rather than an error.
	other, err := e.svc.ListVoices(ctx, actor(sc.Assistant2), access.Anchor{Role: models.RoleDoctor, ID: sc.Doctor.ID}, query.Facets{}, page)
	if err != nil || len(other) != 0 {
		t.Fatalf("foreign listing: %d %v", len(other), err)
	}
	all, err := e.svc.ListVoices(ctx, actor(sc.Doctor), AllUsers, query.Facets{}, page)
	if err != nil || len(all) != 0 {
		t.Fatalf("unprivileged full listing: %d %v", len(all), err)
	}
	all, err = e.svc.ListVoices(ctx, actor(sc.Superuser), AllUsers, query.Facets{}, page)
	if err != nil || len(all) != 2 {
		t.Fatalf("privileged full listing: %d %v", len(all), err)
	}

	_, err = e.svc.ListVoices(ctx, actor(sc.Superuser), access.Anchor{Role: models.RoleDoctor, ID: sc.Patient.ID}, query.Facets{}, page)
	wantKind(t, err, apperr.ErrNotFound)

	notes, err := e.svc.ListNotes(ctx, actor(sc.Manager), access.Anchor{Role: models.RoleAssistant, ID: sc.Assistant.ID}, query.Facets{}, page)
	if err != nil || len(notes) != 1 {
		t.Fatalf("manager listing assistant notes: %d %v", len(notes), err)
	}
	count, err := e.svc.CountNotes(ctx, actor(sc.Patient), access.Anchor{Role: models.RolePatient, ID: sc.Patient.ID}, query.Facets{})
	if err != nil || count != 1 {
		t.Fatalf("patient note count: %d %v", count, err)
	}
}

func TestSearchIsScoped(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sc := e.sc
	v := e.createVoice(t)
	if _, err := e.svc.CreateNote(ctx, actor(sc.Assistant), NoteInput{VoiceID: v.ID, Content: "Fracture of the left radius"}); err != nil {
		t.Fatalf("create note: %v", err)
	}

	cr := search.Criteria{Text: "fracture", Scope: search.Unrestricted()}
	for _, u := range []*models.User{sc.Doctor, sc.Assistant, sc.Manager, sc.Superuser} {
		got, err := e.svc.Search(ctx, actor(u), cr)
		if err != nil || len(got) != 1 {
			t.Fatalf("%s: %d results, %v", u.FullName, len(got), err)
		}
	}
	got, err := e.svc.Search(ctx, actor(sc.Assistant2), cr)
	if err != nil || len(got) != 0 {
		t.Fatalf("caller-supplied scope must be ignored: %d %v", len(got), err)
	}
}

func TestNoteDetailReportsNameLookupFailure(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	v := e.createVoice(t)
	n, err := e.svc.CreateNote(ctx, actor(e.sc.Assistant), NoteInput{VoiceID: v.ID, Content: "draft"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	d, err := e.svc.GetNote(ctx, actor(e.sc.Doctor), n.ID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if d.DoctorFullName != "Doctor D" || d.PatientFullName != "Patient P" {
		t.Fatalf("unexpected names: %q %q", d.DoctorFullName, d.PatientFullName)
	}

	// Fail only the name lookups, which pluck into a string slice.
	lookupErr := errors.New("users table unavailable")
	err = e.db.Callback().Query().Before("gorm:query").Register("fail_name_lookup", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*[]string); ok && tx.Statement.Table == "users" {
			tx.AddError(lookupErr)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := e.svc.GetNote(ctx, actor(e.sc.Doctor), n.ID); !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if _, err := e.svc.GetVoiceNote(ctx, actor(e.sc.Doctor), v.ID); !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error from voice note, got %v", err)
	}
}
