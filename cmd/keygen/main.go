// keygen generates an RSA key pair for signing license tokens and writes the
// PEM files to the output directory. Point JWT_PRIVATE_KEY and JWT_PUBLIC_KEY
// at the generated files.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	outDir := flag.String("out", ".", "Output directory for license_signing.pem and license_signing.pub.pem")
	bits := flag.Int("bits", 2048, "RSA key size in bits")
	flag.Parse()

	if *bits < 2048 {
		log.Fatal("keygen: RSA keys below 2048 bits are not acceptable for token signing")
	}

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("keygen: generate: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		log.Fatalf("keygen: marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatalf("keygen: marshal public key: %v", err)
	}

	privPath := filepath.Join(*outDir, "license_signing.pem")
	pubPath := filepath.Join(*outDir, "license_signing.pub.pem")

	if err := writePEM(privPath, "PRIVATE KEY", privDER, 0o600); err != nil {
		log.Fatalf("keygen: %v", err)
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER, 0o644); err != nil {
		log.Fatalf("keygen: %v", err)
	}

	fmt.Printf("JWT_PRIVATE_KEY=%s\n", privPath)
	fmt.Printf("JWT_PUBLIC_KEY=%s\n", pubPath)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
