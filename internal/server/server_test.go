package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/async"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/repository"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
)

type fakeProcessor struct {
	mu   sync.Mutex
	seen []extract.Document
	err  error
}

func (f *fakeProcessor) Process(_ context.Context, doc extract.Document) (*pipeline.Record, error) {
	f.mu.Lock()
	f.seen = append(f.seen, doc)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Record{
		DocumentID: doc.ID,
		Strategy:   "plaintext",
		Trust:      trust.Report{PerField: map[string]float64{"invoice_number": 1}, Overall: 0.92, Trusted: true},
	}, nil
}

type fakeRecords struct {
	saved   []*pipeline.Record
	saveErr error
}

func (f *fakeRecords) Save(_ context.Context, rec *pipeline.Record) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, rec)
	return "rec-1", nil
}

func (f *fakeRecords) Count(context.Context) (int, error) { return len(f.saved), nil }

func (f *fakeRecords) Recent(_ context.Context, limit int) ([]repository.StoredRecord, error) {
	out := []repository.StoredRecord{}
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, repository.StoredRecord{ID: "rec-1", DocumentID: f.saved[i].DocumentID, Strategy: f.saved[i].Strategy})
	}
	return out, nil
}

func noExtraction(id string) error {
	return &strategy.NoExtractionPossibleError{
		DocumentID: id,
		Failures:   []strategy.Failure{{Strategy: "plaintext", Reason: "empty text"}},
	}
}

func TestExtractionService_SavesRecord(t *testing.T) {
	recs := &fakeRecords{}
	svc := NewExtractionService(&fakeProcessor{}, nil, recs, nil)

	res, err := svc.Extract(context.Background(), extract.Document{ID: "a.txt", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", res.RecordID)
	assert.Len(t, recs.saved, 1)
	assert.Equal(t, trust.Snapshot{}, svc.Snapshot())

	recs.saveErr = errors.New("disk full")
	res, err = svc.Extract(context.Background(), extract.Document{ID: "b.txt", Content: []byte("x")})
	require.NoError(t, err)
	assert.Empty(t, res.RecordID)
	assert.Equal(t, "b.txt", res.Record.DocumentID)
}

func TestHTTP_ExtractRawBody(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewRouter(NewExtractionService(proc, trust.NewMetrics(), nil, nil), HTTPConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/extract?filename=inv.txt", bytes.NewBufferString("Invoice #: INV-1"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	var body Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "inv.txt", body.Record.DocumentID)
	assert.Equal(t, "plaintext", body.Record.Strategy)

	require.Len(t, proc.seen, 1)
	assert.Equal(t, "inv.txt", proc.seen[0].Name)
	assert.Empty(t, proc.seen[0].MIMEType)
}

func TestHTTP_ExtractMultipart(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewRouter(NewExtractionService(proc, nil, nil, nil), HTTPConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "scan.html")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("<p>Total: 10</p>"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/extract?document_id=doc-9", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, proc.seen, 1)
	assert.Equal(t, "doc-9", proc.seen[0].ID)
	assert.Equal(t, "scan.html", proc.seen[0].Name)
	assert.Equal(t, []byte("<p>Total: 10</p>"), proc.seen[0].Content)
}

func TestHTTP_ExtractErrors(t *testing.T) {
	proc := &fakeProcessor{err: noExtraction("a.txt")}
	h := NewRouter(NewExtractionService(proc, nil, nil, nil), HTTPConfig{MaxUploadBytes: 8})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract?filename=a.txt", bytes.NewBufferString("tiny")))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Failures, 1)
	assert.Equal(t, "plaintext", body.Failures[0].Strategy)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract", bytes.NewBufferString("far too large a body")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	proc.err = errors.New("boom")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract?filename=a.txt", bytes.NewBufferString("x")))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestHTTP_MetricsRecordsHealth(t *testing.T) {
	m := trust.NewMetrics()
	m.ObserveFailure()
	recs := &fakeRecords{}
	h := NewRouter(NewExtractionService(&fakeProcessor{}, m, recs, nil), HTTPConfig{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var snap trust.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Documents)
	assert.Equal(t, 1, snap.Failed)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract?filename=a.txt", bytes.NewBufferString("x")))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/records?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"document_id":"a.txt"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/records?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	noStore := NewRouter(NewExtractionService(&fakeProcessor{}, nil, nil, nil), HTTPConfig{})
	rr = httptest.NewRecorder()
	noStore.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/records", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func dialBufconn(t *testing.T, svc *ExtractionService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewGRPC(svc)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPC_Extract(t *testing.T) {
	proc := &fakeProcessor{}
	conn := dialBufconn(t, NewExtractionService(proc, trust.NewMetrics(), nil, nil))
	client := NewClient(conn)
	ctx := context.Background()

	out, err := client.Extract(ctx, extract.Document{Name: "inv.txt", Content: []byte("Invoice #: INV-1")})
	require.NoError(t, err)
	rec := out.GetFields()["record"].GetStructValue()
	require.NotNil(t, rec)
	assert.Equal(t, "inv.txt", rec.GetFields()["document_id"].GetStringValue())
	assert.Equal(t, "plaintext", rec.GetFields()["chosen_strategy"].GetStringValue())
	require.Len(t, proc.seen, 1)
	assert.Equal(t, []byte("Invoice #: INV-1"), proc.seen[0].Content)

	_, err = client.Metrics(ctx)
	require.NoError(t, err)

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())
}

func TestGRPC_ErrorCodes(t *testing.T) {
	proc := &fakeProcessor{err: noExtraction("a")}
	conn := dialBufconn(t, NewExtractionService(proc, nil, nil, nil))
	ctx := context.Background()

	_, err := NewClient(conn).Extract(ctx, extract.Document{ID: "a", Content: []byte("x")})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	proc.err = errors.New("boom")
	_, err = NewClient(conn).Extract(ctx, extract.Document{ID: "a", Content: []byte("x")})
	assert.Equal(t, codes.Internal, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"content": "not base64!"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, MethodExtract, bad, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = conn.Invoke(ctx, MethodExtract, &structpb.Struct{}, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDocumentFromStruct_Defaults(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{
		"content":  base64.StdEncoding.EncodeToString([]byte("x")),
		"filename": " inv.pdf ",
	})
	require.NoError(t, err)
	doc, err := documentFromStruct(req)
	require.NoError(t, err)
	assert.Equal(t, "inv.pdf", doc.ID)
	assert.Equal(t, "inv.pdf", doc.Name)

	req.Fields["filename"] = structpb.NewStringValue("")
	doc, err = documentFromStruct(req)
	require.NoError(t, err)
	assert.Len(t, doc.ID, 36)
}

func TestHTTP_Jobs(t *testing.T) {
	recs := &fakeRecords{}
	svc := NewExtractionService(&fakeProcessor{}, nil, recs, nil)
	q := async.NewProcessorQueue(svc.Handle, nil, async.WithWorkers(1))
	defer q.Shutdown(context.Background())
	h := NewRouter(NewExtractionService(&fakeProcessor{}, nil, recs, nil, WithJobQueue(q)), HTTPConfig{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/jobs?filename=inv.txt", bytes.NewBufferString("Invoice #: INV-1")))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	id := accepted["job_id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/v1/jobs/"+id, rr.Header().Get("Location"))

	var st struct {
		Status   constants.JobStatus `json:"status"`
		RecordID string              `json:"record_id"`
	}
	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil))
		if rr.Code != http.StatusOK || json.Unmarshal(rr.Body.Bytes(), &st) != nil {
			return false
		}
		return st.Status == constants.JobDone
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "rec-1", st.RecordID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	plain := NewRouter(svc, HTTPConfig{})
	rr = httptest.NewRecorder()
	plain.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("x")))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
