// Пакет fingerprint — вычисление контрольных сумм файлов.
// Единый алгоритм для архиватора, сканера и шлюза выдачи: SHA-256 hex.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// copyBufferSize — размер буфера потокового чтения (32 KiB).
// Память не зависит от размера файла.
const copyBufferSize = 32 * 1024

// Reader вычисляет SHA-256 содержимого потока.
// Читает поток до конца; ошибка чтения — ошибка вычисления.
func Reader(r io.Reader) (string, error) {
	hasher := sha256.New()
	buf := make([]byte, copyBufferSize)

	if _, err := io.CopyBuffer(hasher, r, buf); err != nil {
		return "", fmt.Errorf("ошибка чтения потока: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// File вычисляет SHA-256 содержимого файла.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("ошибка вычисления контрольной суммы %s: %w", path, err)
	}
	return sum, nil
}

// Derived вычисляет производную контрольную сумму из метаданных:
// SHA-256 от строки "path|lastModified(RFC3339, UTC)".
//
// Используется для записей SharePoint: Graph API не отдаёт содержимое
// сканеру дёшево, поэтому сумма детерминирована по метаданным, а не по
// байтам. Гарантия целостности ослаблена — это маркер версии, не
// криптографическое подтверждение содержимого.
func Derived(path string, lastModified time.Time) string {
	payload := path + "|" + lastModified.UTC().Format(time.RFC3339)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
