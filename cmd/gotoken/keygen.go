package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "generate signing key material",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "method",
				Usage: "ed25519 or hs256",
				Value: "ed25519",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "directory for ed25519 PEM files",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			switch c.String("method") {
			case "hs256":
				return writeHSSecret(c.App.Writer)
			case "ed25519":
				return writeEdKeys(c.App.Writer, c.String("out"))
			default:
				return fmt.Errorf("unknown method %q", c.String("method"))
			}
		},
	}
}

// writeHSSecret prints a 32-byte secret in the form jwt.secret accepts.
func writeHSSecret(w io.Writer) error {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "base64:%s\n", base64.StdEncoding.EncodeToString(secret))
	return err
}

func writeEdKeys(w io.Writer, dir string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	privPath := filepath.Join(dir, "jwt_ed25519.pem")
	pubPath := filepath.Join(dir, "jwt_ed25519.pub.pem")

	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "private key: %s\npublic key:  %s\n", privPath, pubPath)
	return err
}
