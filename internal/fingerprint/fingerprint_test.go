package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// sha256 от "abc" — известный тестовый вектор.
const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

// TestReader_KnownVector проверяет совпадение с известным вектором SHA-256.
func TestReader_KnownVector(t *testing.T) {
	got, err := Reader(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Reader() ошибка: %v", err)
	}
	if got != abcSHA256 {
		t.Errorf("Reader(\"abc\") = %s, ожидалось %s", got, abcSHA256)
	}
}

// TestReader_Empty проверяет сумму пустого потока.
func TestReader_Empty(t *testing.T) {
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	got, err := Reader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Reader() ошибка: %v", err)
	}
	if got != emptySHA256 {
		t.Errorf("Reader(\"\") = %s, ожидалось %s", got, emptySHA256)
	}
}

// TestFile проверяет вычисление суммы файла и совпадение с Reader.
func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("не удалось создать файл: %v", err)
	}

	got, err := File(path)
	if err != nil {
		t.Fatalf("File() ошибка: %v", err)
	}
	if got != abcSHA256 {
		t.Errorf("File() = %s, ожидалось %s", got, abcSHA256)
	}
}

// TestFile_NotExist проверяет ошибку для несуществующего файла.
func TestFile_NotExist(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("File() для несуществующего файла — ожидалась ошибка")
	}
}

// TestDerived проверяет детерминированность и формат производной суммы.
func TestDerived(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	path := "https://contoso.sharepoint.com/sites/docs/report.pdf"

	// sha256("https://contoso.sharepoint.com/sites/docs/report.pdf|2024-03-01T10:00:00Z")
	const want = "bc01cb3dfa05b8c001bc2615b110ba632ccd2d919fc08af9c1aead94e6904091"

	got := Derived(path, mtime)
	if got != want {
		t.Errorf("Derived() = %s, ожидалось %s", got, want)
	}

	// Детерминированность: тот же вход — та же сумма
	if again := Derived(path, mtime); again != got {
		t.Error("Derived() недетерминирована")
	}

	// Время в другом поясе нормализуется в UTC
	msk := time.FixedZone("MSK", 3*3600)
	if inMSK := Derived(path, mtime.In(msk)); inMSK != got {
		t.Error("Derived() зависит от часового пояса входного времени")
	}

	// Изменение mtime меняет сумму
	if changed := Derived(path, mtime.Add(time.Second)); changed == got {
		t.Error("Derived() не отличает версии по времени модификации")
	}
}
