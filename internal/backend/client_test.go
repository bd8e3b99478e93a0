package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telecrm/internal/device"
	"telecrm/internal/syncq"
)

func TestRegisterReturnsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["deviceName"] != "Pixel 7" {
			t.Fatalf("unexpected device name %q", req["deviceName"])
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "deviceId": "d1", "token": "tok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	creds, err := c.Register(context.Background(), "Pixel 7")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if creds.DeviceID != "d1" || creds.Token != "tok" {
		t.Fatalf("unexpected credentials %#v", creds)
	}
}

func TestSyncCallLogSendsWirePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call-log" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	creds := device.Credentials{DeviceID: "d1", Token: "tok"}
	err := c.SyncCallLog(context.Background(), creds, "c1", syncq.CallLogPayload{
		PhoneNumber: "+15551234567",
		CallStatus:  "Answered",
		Duration:    30,
		Timestamp:   1_700_000_000_000,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	want := map[string]any{
		"deviceId":    "d1",
		"token":       "tok",
		"callId":      "c1",
		"phoneNumber": "+15551234567",
		"callStatus":  "Answered",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s = %v, want %v", k, got[k], v)
		}
	}
	if got["duration"] != float64(30) || got["timestamp"] != float64(1_700_000_000_000) {
		t.Fatalf("numeric fields wrong: %v", got)
	}
	if url, present := got["recordingUrl"]; !present || url != nil {
		t.Fatalf("recordingUrl must be an explicit null, got %v (present=%v)", url, present)
	}
}

func TestSyncCallLogNonSuccessBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "bad token"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.SyncCallLog(context.Background(), device.Credentials{DeviceID: "d1", Token: "x"}, "c1", syncq.CallLogPayload{})
	if err == nil {
		t.Fatalf("expected error for success=false response")
	}
}

func TestSyncCallLogServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.SyncCallLog(context.Background(), device.Credentials{DeviceID: "d1", Token: "x"}, "c1", syncq.CallLogPayload{})
	if err == nil {
		t.Fatalf("expected error for http 500")
	}
}

func TestSyncOutcomeEncodesJSONQuantities(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call-outcome" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.SyncOutcome(context.Background(), device.Credentials{DeviceID: "d1", Token: "tok"}, "c1", syncq.OutcomePayload{
		Outcome:           "Ordered",
		ProductQuantities: map[string]int{"A": 2},
		NeedBranding:      true,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got["outcome"] != "Ordered" || got["needBranding"] != true {
		t.Fatalf("outcome fields wrong: %v", got)
	}
	q, ok := got["productQuantities"].(map[string]any)
	if !ok || q["A"] != float64(2) {
		t.Fatalf("productQuantities wrong: %v", got["productQuantities"])
	}
	if _, present := got["followUpDate"]; present {
		t.Fatalf("zero follow-up date must be omitted")
	}
}

func TestUploadRecordingMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload-recording" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("deviceId") != "d1" || r.FormValue("token") != "tok" || r.FormValue("callId") != "c1" {
			t.Fatalf("form fields wrong: %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "rec.amr" {
			t.Fatalf("filename %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	creds := device.Credentials{DeviceID: "d1", Token: "tok"}
	body := []byte("amr-bytes")
	if err := c.UploadRecording(context.Background(), creds, "c1", "rec.amr", bytes.NewReader(body)); err != nil {
		t.Fatalf("upload: %v", err)
	}
}

func TestOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound) // any response counts as reachable
	}))
	c := NewClient(srv.URL, time.Second, nil)
	if !c.Online(context.Background()) {
		t.Fatal("responding backend reported offline")
	}

	srv.Close()
	if c.Online(context.Background()) {
		t.Fatal("closed backend reported online")
	}
}
