//go:build windows

package protect

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// DPAPI protects data with CryptProtectData in the current user's scope.
type DPAPI struct{}

// Default returns the protector for this platform. keyDir is unused on
// Windows because DPAPI keeps the key material in the user profile.
func Default(_ string) (Protector, error) {
	return DPAPI{}, nil
}

// Protect implements Protector.
func (DPAPI) Protect(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	in := windows.DataBlob{Size: uint32(len(plaintext)), Data: &plaintext[0]}
	var out windows.DataBlob
	if err := windows.CryptProtectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("protect: CryptProtectData failed: %w", err)
	}
	return takeBlob(&out), nil
}

// Unprotect implements Protector.
func (DPAPI) Unprotect(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, ErrNotProtected
	}
	in := windows.DataBlob{Size: uint32(len(ciphertext)), Data: &ciphertext[0]}
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotProtected, err)
	}
	return takeBlob(&out), nil
}

// takeBlob copies a DPAPI output blob into Go memory and frees it.
func takeBlob(b *windows.DataBlob) []byte {
	if b.Data == nil {
		return []byte{}
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(b.Data)))
	out := make([]byte, b.Size)
	copy(out, unsafe.Slice(b.Data, b.Size))
	return out
}

// machineIdentity returns the MachineGuid written at Windows setup.
func machineIdentity() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", fmt.Errorf("protect: failed to open machine key: %w", err)
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	if err != nil {
		return "", fmt.Errorf("protect: failed to read MachineGuid: %w", err)
	}
	return "machine-guid:" + guid, nil
}
