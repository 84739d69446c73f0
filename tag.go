// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

// BSI TR-03110 Part 3, Appendix B and D
//
// https://www.bsi.bund.de/SharedDocs/Downloads/EN/BSI/Publications/TechGuidelines/TR03110/BSI_TR-03110_Part-3-V2_2.pdf
//
//nolint:unused
const (
	// Table B.1. MSE:Set AT / KAT / DST
	tagCryptographicMechanism = 0x80
	tagPublicKeyReference     = 0x83
	tagPrivateKeyReference    = 0x84
	tagEphemeralPublicKey     = 0x91
	tagAuxiliaryData          = 0x67
	tagCHAT                   = 0x7f4c

	// Table B.4. General Authenticate in PACE
	tagEncryptedNonce    = 0x80
	tagMappingDataPCD    = 0x81
	tagMappingDataPICC   = 0x82
	tagEphemeralKeyPCD   = 0x83
	tagEphemeralKeyPICC  = 0x84
	tagTokenPCD          = 0x85
	tagTokenPICC         = 0x86
	tagCARecent          = 0x87
	tagCAPrevious        = 0x88
	tagEncryptedChipData = 0x8a

	// Table B.11. General Authenticate in Chip Authentication
	tagCAEphemeralKey = 0x80
	tagCANonce        = 0x81
	tagCAToken        = 0x82

	// Table D.1. Card verifiable certificates
	tagCVCertificate     = 0x7f21
	tagCertificateBody   = 0x7f4e
	tagProfileIdentifier = 0x5f29
	tagCAR               = 0x42
	tagCHR               = 0x5f20
	tagEffectiveDate     = 0x5f25
	tagExpirationDate    = 0x5f24
	tagExtensions        = 0x65
	tagSignature         = 0x5f37
	tagDiscretionaryData = 0x53

	// ISO/IEC 7816-4, Section 11.2.3 Read Binary with odd INS
	tagOffset = 0x54
)
