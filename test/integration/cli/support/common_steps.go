package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// iRunCommand executes a CLI command.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "bookscan" {
		parts[0] = filepath.Join(testCtx.WorkingDir, "bin", "bookscan")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	output, err := cmd.CombinedOutput()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}
	return nil
}

// substituteCommandVariables replaces {db}, {tmp} and {file:name} in command.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{db}", testCtx.DBPath)
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
	for name, path := range testCtx.Files {
		command = strings.ReplaceAll(command, "{file:"+name+"}", path)
	}
	return command
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// jsonOutput returns the JSON document in the output. Log lines on stderr
// are JSON objects too, so the document is the last top-level value.
func (testCtx *TestContext) jsonOutput() (string, error) {
	output := strings.TrimSpace(testCtx.LastOutput)
	for i, r := range output {
		if r != '[' && r != '{' {
			continue
		}
		if i > 0 && output[i-1] != '\n' {
			continue
		}
		candidate := output[i:]
		if json.Valid([]byte(candidate)) && !strings.HasPrefix(candidate, `{"time"`) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no JSON document found in output: %s", testCtx.LastOutput)
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.jsonOutput()
	return err
}

// theJSONShouldContain verifies the first JSON object (or the first element
// of a JSON array) has field, given as a dotted path.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	doc, err := testCtx.jsonOutput()
	if err != nil {
		return err
	}

	var value interface{}
	if err := json.Unmarshal([]byte(doc), &value); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if arr, ok := value.([]interface{}); ok {
		if len(arr) == 0 {
			return errors.New("JSON array is empty")
		}
		value = arr[0]
	}

	current, ok := value.(map[string]interface{})
	if !ok {
		return errors.New("JSON is not an object")
	}
	parts := strings.Split(field, ".")
	for i, part := range parts {
		val, exists := current[part]
		if !exists {
			return fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return nil
		}
		if current, ok = val.(map[string]interface{}); !ok {
			return fmt.Errorf("cannot navigate deeper into non-object field '%s'", part)
		}
	}
	return nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastOutput
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}
	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(filename string) error {
	filename = testCtx.substituteCommandVariables(filename)
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("file %s does not exist: %w", filename, err)
	}
	testCtx.LastOutputFile = filename
	return nil
}

func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	data, err := os.ReadFile(filename) //nolint:gosec // G304: scenario-controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if !strings.Contains(string(data), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", filename, expectedContent, data)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldHaveLines(n int) error {
	var lines int
	for _, line := range strings.Split(testCtx.LastOutput, "\n") {
		if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, `{"time"`) {
			lines++
		}
	}
	if lines != n {
		return fmt.Errorf("expected %d output lines, got %d\nOutput: %s", n, lines, testCtx.LastOutput)
	}
	return nil
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should have (\d+) lines?$`, testCtx.theOutputShouldHaveLines)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file should contain "([^"]*)"$`, func(content string) error {
		return testCtx.theFileShouldContain(testCtx.LastOutputFile, content)
	})
}
