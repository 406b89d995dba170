package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

func (testCtx *TestContext) theAPIServerIsRunning() error {
	return testCtx.createTestHTTPServer()
}

func (testCtx *TestContext) iStartTheServerWith(args string) error {
	return testCtx.StartServer(args)
}

func (testCtx *TestContext) iStartTheServer() error {
	return testCtx.StartServer("")
}

// makeHTTPRequest sends a request to the running server and records the
// response.
func (testCtx *TestContext) makeHTTPRequest(method, endpoint string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, testCtx.GetServerURL()+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(data)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodGet, endpoint, nil, nil)
}

func (testCtx *TestContext) iGETWithOrigin(endpoint, origin string) error {
	return testCtx.makeHTTPRequest(http.MethodGet, endpoint, nil, map[string]string{"Origin": origin})
}

func (testCtx *TestContext) iDELETE(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodDelete, endpoint, nil, nil)
}

func (testCtx *TestContext) iPOSTJSON(endpoint string, body *godog.DocString) error {
	return testCtx.makeHTTPRequest(http.MethodPost, endpoint, strings.NewReader(body.Content),
		map[string]string{"Content-Type": "application/json"})
}

// iUploadTo posts the named fixture as the "image" form field.
func (testCtx *TestContext) iUploadTo(name, endpoint string) error {
	path, ok := testCtx.Files[name]
	if !ok {
		return fmt.Errorf("unknown fixture %q", name)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixture path
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return testCtx.makeHTTPRequest(http.MethodPost, endpoint, &buf,
		map[string]string{"Content-Type": w.FormDataContentType()})
}

func (testCtx *TestContext) theResponseStatusShouldBe(expectedStatus int) error {
	if testCtx.LastHTTPStatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d\nResponse: %s",
			expectedStatus, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nResponse: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a dotted JSON path with want, both
// rendered as text.
func (testCtx *TestContext) theResponseFieldShouldBe(field, want string) error {
	var value interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &value); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nResponse: %s", err, testCtx.LastHTTPResponse)
	}
	for _, part := range strings.Split(field, ".") {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("cannot navigate into '%s'", part)
		}
		if value, ok = obj[part]; !ok {
			return fmt.Errorf("field '%s' not found\nResponse: %s", field, testCtx.LastHTTPResponse)
		}
	}
	if got := fmt.Sprint(value); got != want {
		return fmt.Errorf("field '%s' is %q, want %q", field, got, want)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastHTTPResponse)) {
		return fmt.Errorf("response is not valid JSON: %s", testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != want {
		return fmt.Errorf("header %s is %q, want %q", name, got, want)
	}
	return nil
}

func (testCtx *TestContext) iSendSIGTERMToTheServer() error {
	state, err := testCtx.StopServerProcess()
	if err != nil {
		return fmt.Errorf("server did not exit cleanly: %w", err)
	}
	if !state.Success() {
		return fmt.Errorf("server exited with %s", state)
	}
	return nil
}

func (testCtx *TestContext) theServerShouldStopListening() error {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(testCtx.GetServerURL() + "/health")
	if err == nil {
		_ = resp.Body.Close()
		return errors.New("server is still accepting requests")
	}
	return nil
}

// RegisterServerSteps registers HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the API server is running$`, testCtx.theAPIServerIsRunning)
	sc.Step(`^I start the server$`, testCtx.iStartTheServer)
	sc.Step(`^I start the server with "([^"]*)"$`, testCtx.iStartTheServerWith)
	sc.Step(`^I send SIGTERM to the server$`, testCtx.iSendSIGTERMToTheServer)
	sc.Step(`^the server should stop listening for new requests$`, testCtx.theServerShouldStopListening)

	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I GET "([^"]*)" with origin "([^"]*)"$`, testCtx.iGETWithOrigin)
	sc.Step(`^I DELETE "([^"]*)"$`, testCtx.iDELETE)
	sc.Step(`^I POST JSON to "([^"]*)":$`, testCtx.iPOSTJSON)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response should be valid JSON$`, testCtx.theResponseShouldBeValidJSON)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
