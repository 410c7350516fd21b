package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/atinyakov/GophOTP/internal/models"

	"golang.org/x/term"
)

// PasswordEnv overrides the interactive password prompt.
const PasswordEnv = "GOPHOTP_PASSWORD"

var ErrEmptyPassword = errors.New("client: empty password")

// ReadPassword returns $GOPHOTP_PASSWORD when set. Otherwise it prints
// prompt to out and reads one line from in, without echo when in is a
// terminal.
func ReadPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(out, prompt)
	var (
		pw  string
		err error
	)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var b []byte
		b, err = term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		pw = string(b)
	} else {
		pw, err = readLine(in)
	}
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if pw == "" {
		return "", ErrEmptyPassword
	}
	return pw, nil
}

// readLine reads up to '\n' one byte at a time so nothing after the line is
// consumed from in.
func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			if sb.Len() == 0 {
				return "", io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

// Prompter asks for values line by line.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// NewPrompterFromScanner shares a scanner with a caller that also reads
// from it, such as the shell loop.
func NewPrompterFromScanner(s *bufio.Scanner, out io.Writer) *Prompter {
	return &Prompter{scanner: s, out: out}
}

// Line prints label and returns the trimmed answer.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// Entry asks for a new entry. An otpauth:// URI entered as the secret
// imports the entry and skips the remaining questions.
func (p *Prompter) Entry() (models.NewEntryRequest, error) {
	var req models.NewEntryRequest

	secret, err := p.Line("Secret (Base32) or otpauth:// URI: ")
	if err != nil {
		return req, err
	}
	if strings.HasPrefix(strings.ToLower(secret), "otpauth://") {
		req.URI = secret
		return req, nil
	}
	req.Secret = secret

	if req.Name, err = p.Line("Account name: "); err != nil {
		return req, err
	}
	if req.Platform, err = p.Line("Platform (issuer): "); err != nil {
		return req, err
	}
	if req.Description, err = p.Line("Description: "); err != nil {
		return req, err
	}
	if req.Period, err = p.number("Period in seconds [30]: "); err != nil {
		return req, err
	}
	if req.Digits, err = p.number("Digits [6]: "); err != nil {
		return req, err
	}
	return req, nil
}

// number reads an optional non-negative integer; empty means zero.
func (p *Prompter) number(label string) (int, error) {
	s, err := p.Line(label)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
