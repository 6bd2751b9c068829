package doubleratchet

import (
	"signal-sessions/crypto/key_ed25519"
)

const (
	// maxSkip is the constant specifying the maximum number of message keys that can be skipped in a single chain
	maxSkip = 1000
)

var (
	utils = newDoubleRatchetUtils()
)

// https://signal.org/docs/specifications/doubleratchet/#encrypting-messages and
// https://signal.org/docs/specifications/doubleratchet/#decrypting-messages
type DoubleRatchet struct {
	CurrentState *State
}

// FromState wraps a previously persisted state.
func FromState(state *State) *DoubleRatchet {
	return newDoubleRatchet(state)
}

func newDoubleRatchet(initState *State) *DoubleRatchet {
	if initState.MkSkipped == nil {
		initState.MkSkipped = make(map[string]MsgKey)
	}
	return &DoubleRatchet{
		CurrentState: initState,
	}
}

// InitAlice initializes the Double Ratchet for the sender
func InitAlice(sk RatchetKey, bobDHPubKey key_ed25519.PublicKey) (*DoubleRatchet, error) {
	// Init Dhs
	dhs, err := utils.generateDH()
	if err != nil {
		return nil, err
	}

	// Init Rk, Cks
	kdfRkInput, err := utils.dh(dhs.Priv, bobDHPubKey)
	if err != nil {
		return nil, err
	}
	rk, cks, err := utils.kdfRk(sk, *kdfRkInput)
	if err != nil {
		return nil, err
	}

	return newDoubleRatchet(&State{
		Dhs: *dhs,
		Dhr: bobDHPubKey.Serialize(),
		Rk:  *rk,
		Cks: cks,
		// Ckr, Ns, Nr, Pn are init as zero values
	}), nil
}

// InitBob initializes the Double Ratchet for the receiver
func InitBob(sk RatchetKey, bobDHKeyPair key_ed25519.Pair) *DoubleRatchet {
	return newDoubleRatchet(&State{
		Dhs: bobDHKeyPair.Clone(),
		Rk:  sk,
		// Dhr, Cks, Ckr, Ns, Nr, Pn are init as zero values
	})
}

// Encrypt advances the sending chain by one step and encrypts plaintext under the resulting
// message key, authenticating associatedData together with the header.
func (dr *DoubleRatchet) Encrypt(plaintext []byte, associatedData []byte) (*Header, []byte, error) {
	if dr.CurrentState.Cks == nil {
		return nil, nil, ErrNoSendingChain
	}

	// 1. Generate current message key & update chain key
	cks, mk, err := utils.kdfCk(*dr.CurrentState.Cks)
	if err != nil {
		return nil, nil, err
	}

	// 2. Create header & its byte sequence
	header := Header{
		RatchetPub: dr.CurrentState.Dhs.Pub.Serialize(),
		Pn:         dr.CurrentState.Pn,
		N:          dr.CurrentState.Ns,
	}

	// 3. Encrypt plaintext w/ header + associatedData
	ad, err := utils.concat(associatedData, header)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err := utils.encrypt(*mk, plaintext, ad)
	if err != nil {
		return nil, nil, err
	}

	// 4. Advance the sending chain
	dr.CurrentState.Cks = cks
	dr.CurrentState.Ns++

	return &header, ciphertext, nil
}

// Decrypt tries the skipped message keys first. Otherwise it stores the keys skipped on the
// current receiving chain, runs a DH ratchet step when the header carries a new ratchet key, and
// advances the receiving chain to the header's message number. All changes are made on a copy of
// the state and kept only when authentication succeeds.
func (dr *DoubleRatchet) Decrypt(header Header, ciphertext []byte, associatedData []byte) ([]byte, error) {
	// If no error occurs, dr.CurrentState will be replaced with newState
	newState := dr.CurrentState.clone()

	// 1. Try to decrypt with skipped message keys
	plaintext, found, err := trySkippedMessageKeys(newState, &header, ciphertext, associatedData)
	if err != nil {
		return nil, err
	}
	if found {
		dr.CurrentState = newState
		return plaintext, nil
	}

	// 2. If a new ratchet key has been received, save skipped message keys from the receiving chain and
	// perform a DH ratchet step
	if newState.Dhr == nil || !header.RatchetPub.Equals(newState.Dhr) {
		if err := dr.skipMessageKeys(newState, header.Pn); err != nil {
			return nil, err
		}
		if err := dhRatchet(newState, &header); err != nil {
			return nil, err
		}
	}

	// 3. Store skipped message keys from the current receiving chain if needed
	if err := dr.skipMessageKeys(newState, header.N); err != nil {
		return nil, err
	}

	// 4. Get message key
	if newState.Ckr == nil {
		return nil, ErrNoReceivingChain
	}
	ckr, mk, err := utils.kdfCk(*newState.Ckr)
	if err != nil {
		return nil, err
	}
	newState.Ckr = ckr
	newState.Nr++

	// 5. Decrypt
	adHeader, err := utils.concat(associatedData, header)
	if err != nil {
		return nil, err
	}
	plaintext, err = utils.decrypt(*mk, ciphertext, adHeader)
	if err != nil {
		return nil, err
	}

	// 6. Update State
	dr.CurrentState = newState
	return plaintext, nil
}

// MaxSkip returns the constant specifying the maximum number of message keys that can be skipped in a single chain
func (dr *DoubleRatchet) MaxSkip() MsgIndex {
	return maxSkip
}

func (dr *DoubleRatchet) skipMessageKeys(newState *State, until MsgIndex) error {
	if newState.Nr+dr.MaxSkip() < until {
		return ErrSkippingTooManyKeys
	}

	if newState.Ckr != nil {
		for newState.Nr < until {
			ckr, mk, err := utils.kdfCk(*newState.Ckr)
			if err != nil {
				return err
			}
			newState.Ckr = ckr
			newState.MkSkipped[mkSkippedKey(newState.Dhr, newState.Nr)] = *mk
			newState.Nr++
		}
	}
	return nil
}

func trySkippedMessageKeys(newState *State, header *Header, ciphertext, AD []byte) ([]byte, bool, error) {
	key := mkSkippedKey(header.RatchetPub, header.N)
	mk, exists := newState.MkSkipped[key]
	if !exists {
		return nil, false, nil
	}
	delete(newState.MkSkipped, key)

	adHeader, err := utils.concat(AD, *header)
	if err != nil {
		return nil, false, err
	}
	plaintext, err := utils.decrypt(mk, ciphertext, adHeader)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

// dhRatchet replaces the receiving chain with one derived from the peer's new ratchet key,
// then rotates our own ratchet key to start a fresh sending chain.
func dhRatchet(newState *State, header *Header) error {
	if err := dhRatchetReceiveChain(newState, header); err != nil {
		return err
	}
	return dhRatchetSendChain(newState)
}

func dhRatchetReceiveChain(newState *State, header *Header) error {
	newState.Nr = 0
	newState.Dhr = header.RatchetPub.Serialize()

	dhOut, err := utils.dh(newState.Dhs.Priv, newState.Dhr)
	if err != nil {
		return err
	}

	rk, ckr, err := utils.kdfRk(newState.Rk, *dhOut)
	if err != nil {
		return err
	}
	newState.Rk = *rk
	newState.Ckr = ckr
	return nil
}

func dhRatchetSendChain(newState *State) error {
	newState.Pn = newState.Ns
	newState.Ns = 0

	dhs, err := utils.generateDH()
	if err != nil {
		return err
	}
	newState.Dhs = *dhs

	dhOut, err := utils.dh(newState.Dhs.Priv, newState.Dhr)
	if err != nil {
		return err
	}

	rk, cks, err := utils.kdfRk(newState.Rk, *dhOut)
	if err != nil {
		return err
	}
	newState.Rk = *rk
	newState.Cks = cks
	return nil
}
