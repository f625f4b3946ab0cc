// Package validate implements the signature and code-signing policy
// (spec §4.4) applied to a downloaded archive and its extracted bundle or
// package before the stage controller is allowed to begin installing it.
package validate

import (
	"os"

	"installerd/internal/bundle"
	"installerd/internal/codesign"
	"installerd/internal/cryptoutil"
)

// Reason categorizes why a Decision rejected an archive, for logging and
// for the fatal-exit reason recorded in the error taxonomy.
type Reason string

const (
	ReasonAccepted                Reason = ""
	ReasonNoInstallSource         Reason = "no_install_source"
	ReasonHostMissingPublicKey    Reason = "host_missing_public_key"
	ReasonPackageSignatureInvalid Reason = "package_signature_invalid"
	ReasonNewBundleMissingKey     Reason = "new_bundle_missing_public_key"
	ReasonBundleSignatureInvalid  Reason = "bundle_signature_invalid"
	ReasonCodeSigningBroken       Reason = "code_signing_broken"
	ReasonContinuityBroken        Reason = "code_signing_continuity_broken"
)

// Decision is the validator's verdict: whether the archive may proceed,
// and if not, why.
type Decision struct {
	Accepted bool
	Reason   Reason
}

func accept() Decision              { return Decision{Accepted: true} }
func reject(reason Reason) Decision { return Decision{Accepted: false, Reason: reason} }

// Input bundles the values the validator needs: the resolved host bundle,
// the path of the downloaded archive (whose bytes the signature was
// computed over), the directory the archive was extracted to, and the detached
// signature accompanying it.
type Input struct {
	Host             *bundle.Info
	ArchivePath      string
	ExtractedPath    string
	EncodedSignature string
}

// Validate runs spec §4.4 against in. It never returns an error for a
// rejected archive; errors are reserved for operational failures (archive
// unreadable) that the caller should treat as equally fatal.
func Validate(in Input) (Decision, error) {
	source, err := bundle.FindInstallSource(in.ExtractedPath)
	if err != nil {
		return reject(ReasonNoInstallSource), nil
	}

	archive, err := os.ReadFile(in.ArchivePath)
	if err != nil {
		return Decision{}, err
	}

	if source.IsPackage {
		return validatePackage(in.Host, archive, in.EncodedSignature)
	}
	return validateBundle(in.Host, source, archive, in.EncodedSignature)
}

func validatePackage(host *bundle.Info, archive []byte, encodedSignature string) (Decision, error) {
	if !host.HasPublicKey() {
		return reject(ReasonHostMissingPublicKey), nil
	}
	pub, err := cryptoutil.ParsePublicKeyFromBase64(host.PublicKey)
	if err != nil {
		return Decision{}, err
	}
	if err := cryptoutil.VerifyDetached(archive, encodedSignature, pub); err != nil {
		return reject(ReasonPackageSignatureInvalid), nil
	}
	return accept(), nil
}

func validateBundle(host, newBundle *bundle.Info, archive []byte, encodedSignature string) (Decision, error) {
	if !newBundle.HasPublicKey() {
		return reject(ReasonNewBundleMissingKey), nil
	}

	newPub, err := cryptoutil.ParsePublicKeyFromBase64(newBundle.PublicKey)
	if err != nil {
		return Decision{}, err
	}
	if err := cryptoutil.VerifyDetached(archive, encodedSignature, newPub); err != nil {
		return reject(ReasonBundleSignatureInvalid), nil
	}

	keysMatch := host.HasPublicKey() && host.PublicKey == newBundle.PublicKey

	if keysMatch {
		if codesign.IsSigned(newBundle.Signature) {
			if err := codesign.VerifyIntrinsic(newBundle.Path, newBundle.Signature); err != nil {
				return reject(ReasonCodeSigningBroken), nil
			}
		}
		return accept(), nil
	}

	if !codesign.ContinuityHolds(host.Signature, newBundle.Signature) {
		return reject(ReasonContinuityBroken), nil
	}
	return accept(), nil
}
