// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/elliptic"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// DomainParameters are either *ECParameters or *DHParameters.
type DomainParameters interface {
	fmt.Stringer

	isDomainParameters()
}

// Standardized domain parameters
//
// See: BSI TR-03110 Part 3, Appendix A.2.1.1 and ICAO Doc 9303 Part 11, Section 9.5.1
const (
	ParameterIDModP1024    = 0  // 1024-bit MODP Group with 160-bit Prime Order Subgroup
	ParameterIDModP2048224 = 1  // 2048-bit MODP Group with 224-bit Prime Order Subgroup
	ParameterIDModP2048256 = 2  // 2048-bit MODP Group with 256-bit Prime Order Subgroup
	ParameterIDP192        = 8  // NIST P-192 (secp192r1)
	ParameterIDBP192       = 9  // brainpoolP192r1
	ParameterIDP224        = 10 // NIST P-224 (secp224r1)
	ParameterIDBP224       = 11 // brainpoolP224r1
	ParameterIDP256        = 12 // NIST P-256 (secp256r1)
	ParameterIDBP256       = 13 // brainpoolP256r1
	ParameterIDBP320       = 14 // brainpoolP320r1
	ParameterIDP384        = 15 // NIST P-384 (secp384r1)
	ParameterIDBP384       = 16 // brainpoolP384r1
	ParameterIDBP512       = 17 // brainpoolP512r1
	ParameterIDP521        = 18 // NIST P-521 (secp521r1)
)

//nolint:gochecknoglobals
var (
	standardizedParameters = map[int]DomainParameters{
		0: newDHParameters(
			"B10B8F96A080E01DDE92DE5EAE5D54EC52C99FBCFB06A3C69A6A9DCA52D23B61" +
				"6073E28675A23D189838EF1E2EE652C013ECB4AEA906112324975C3CD49B83BF" +
				"ACCBDD7D90C4BD7098488E9C219A73724EFFD6FAE5644738FAA31A4FF55BCCC0" +
				"A151AF5F0DC8B4BD45BF37DF365C1A65E68CFDA76D4DA708DF1FB2BC2E4A4371",
			"A4D1CBD5C3FD34126765A442EFB99905F8104DD258AC507FD6406CFF14266D31" +
				"266FEA1E5C41564B777E690F5504F213160217B4B01B886A5E91547F9E2749F4" +
				"D7FBD7D3B9A92EE1909D0D2263F80A76A6A24C087A091F531DBF0A0169B6A28A" +
				"D662A4D18E73AFA32D779D5918D08BC8858F4DCEF97C2A24855E6EEB22B3B2E5",
			"F518AA8781A8DF278ABA4E7D64B7CB9D49462353"),
		1: newDHParameters(
			"AD107E1E9123A9D0D660FAA79559C51FA20D64E5683B9FD1B54B1597B61D0A75" +
				"E6FA141DF95A56DBAF9A3C407BA1DF15EB3D688A309C180E1DE6B85A1274A0A6" +
				"6D3F8152AD6AC2129037C9EDEFDA4DF8D91E8FEF55B7394B7AD5B7D0B6C12207" +
				"C9F98D11ED34DBF6C6BA0B2C8BBC27BE6A00E0A0B9C49708B3BF8A3170918836" +
				"81286130BC8985DB1602E714415D9330278273C7DE31EFDC7310F7121FD5A074" +
				"15987D9ADC0A486DCDF93ACC44328387315D75E198C641A480CD86A1B9E587E8" +
				"BE60E69CC928B2B9C52172E413042E9B23F10B0E16E79763C9B53DCF4BA80A29" +
				"E3FB73C16B8E75B97EF363E2FFA31F71CF9DE5384E71B81C0AC4DFFE0C10E64F",
			"AC4032EF4F2D9AE39DF30B5C8FFDAC506CDEBE7B89998CAF74866A08CFE4FFE3" +
				"A6824A4E10B9A6F0DD921F01A70C4AFAAB739D7700C29F52C57DB17C620A8652" +
				"BE5E9001A8D66AD7C17669101999024AF4D027275AC1348BB8A762D0521BC98A" +
				"E247150422EA1ED409939D54DA7460CDB5F6C6B250717CBEF180EB34118E98D1" +
				"19529A45D6F834566E3025E316A330EFBB77A86F0C1AB15B051AE3D428C8F8AC" +
				"B70A8137150B8EEB10E183EDD19963DDD9E263E4770589EF6AA21E7F5F2FF381" +
				"B539CCE3409D13CD566AFBB48D6C019181E1BCFE94B30269EDFE72FE9B6AA4BD" +
				"7B5A0F1C71CFFF4C19C418E1F6EC017981BC087F2A7065B384B890D3191F2BFA",
			"801C0D34C58D93FE997177101F80535A4738CEBCBF389A99B36371EB"),
		2: newDHParameters(
			"87A8E61DB4B6663CFFBBD19C651959998CEEF608660DD0F25D2CEED4435E3B00" +
				"E00DF8F1D61957D4FAF7DF4561B2AA3016C3D91134096FAA3BF4296D830E9A7C" +
				"209E0C6497517ABD5A8A9D306BCF67ED91F9E6725B4758C022E0B1EF4275BF7B" +
				"6C5BFC11D45F9088B941F54EB1E59BB8BC39A0BF12307F5C4FDB70C581B23F76" +
				"B63ACAE1CAA6B7902D52526735488A0EF13C6D9A51BFA4AB3AD8347796524D8E" +
				"F6A167B5A41825D967E144E5140564251CCACB83E6B486F6B3CA3F7971506026" +
				"C0B857F689962856DED4010ABD0BE621C3A3960A54E710C375F26375D7014103" +
				"A4B54330C198AF126116D2276E11715F693877FAD7EF09CADB094AE91E1A1597",
			"3FB32C9B73134D0B2E77506660EDBD484CA7B18F21EF205407F4793A1A0BA125" +
				"10DBC15077BE463FFF4FED4AAC0BB555BE3A6C1B0C6B47B1BC3773BF7E8C6F62" +
				"901228F8C28CBB18A55AE31341000A650196F931C77A57F2DDF463E5E9EC144B" +
				"777DE62AAAB8A8628AC376D282D6ED3864E67982428EBC831D14348F6F2F9193" +
				"B5045AF2767164E1DFC967C1FB3F2E55A4BD1BFFE83B9C80D052B985D182EA0A" +
				"DB2A3B7313D3FE14C8484B1E052588B9B7D2BBD2DF016199ECD06E1557CD0915" +
				"B3353BBB64E0EC377FD028370DF92B52C7891428CDC67EB6184B523D1DB246C3" +
				"2F63078490F00EF8D647D148D47954515E2327CFEF98C582664B4C0F6CC41659",
			"8CF83642A709A097B447997640129DA299B1A47D1EB3750BA308B0FE64F5FBD3"),
		8: newECParameters("secp192r1",
			"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFFFFFFFFFFFF",
			"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFFFFFFFFFFFC",
			"64210519E59C80E70FA7E9AB72243049FEB8DEECC146B9B1",
			"188DA80EB03090F67CBF20EB43A18800F4FF0AFD82FF1012",
			"07192B95FFC8DA78631011ED6B24CDD573F977A11E794811",
			"FFFFFFFFFFFFFFFFFFFFFFFF99DEF836146BC9B1B4D22831"),
		9: newECParameters("brainpoolP192r1",
			"C302F41D932A36CDA7A3463093D18DB78FCE476DE1A86297",
			"6A91174076B1E0E19C39C031FE8685C1CAE040E5C69A28EF",
			"469A28EF7C28CCA3DC721D044F4496BCCA7EF4146FBF25C9",
			"C0A0647EAAB6A48753B033C56CB0F0900A2F5C4853375FD6",
			"14B690866ABD5BB88B5F4828C1490002E6773FA2FA299B8F",
			"C302F41D932A36CDA7A3462F9E9E916B5BE8F1029AC4ACC1"),
		11: newECParameters("brainpoolP224r1",
			"D7C134AA264366862A18302575D1D787B09F075797DA89F57EC8C0FF",
			"68A5E62CA9CE6C1C299803A6C1530B514E182AD8B0042A59CAD29F43",
			"2580F63CCFE44138870713B1A92369E33E2135D266DBB372386C400B",
			"0D9029AD2C7E5CF4340823B2A87DC68C9E4CE3174C1E6EFDEE12C07D",
			"58AA56F772C0726F24C6B89E4ECDAC24354B9E99CAA3F6D3761402CD",
			"D7C134AA264366862A18302575D0FB98D116BC4B6DDEBCA3A5A7939F"),
		13: newECParameters("brainpoolP256r1",
			"A9FB57DBA1EEA9BC3E660A909D838D726E3BF623D52620282013481D1F6E5377",
			"7D5A0975FC2C3057EEF67530417AFFE7FB8055C126DC5C6CE94A4B44F330B5D9",
			"26DC5C6CE94A4B44F330B5D9BBD77CBF958416295CF7E1CE6BCCDC18FF8C07B6",
			"8BD2AEB9CB7E57CB2C4B482FFC81B7AFB9DE27E1E3BD23C23A4453BD9ACE3262",
			"547EF835C3DAC4FD97F8461A14611DC9C27745132DED8E545C1D54C72F046997",
			"A9FB57DBA1EEA9BC3E660A909D838D718C397AA3B561A6F7901E0E82974856A7"),
		14: newECParameters("brainpoolP320r1",
			"D35E472036BC4FB7E13C785ED201E065F98FCFA6F6F40DEF4F92B9EC7893EC28" +
				"FCD412B1F1B32E27",
			"3EE30B568FBAB0F883CCEBD46D3F3BB8A2A73513F5EB79DA66190EB085FFA9F4" +
				"92F375A97D860EB4",
			"520883949DFDBC42D3AD198640688A6FE13F41349554B49ACC31DCCD88453981" +
				"6F5EB4AC8FB1F1A6",
			"43BD7E9AFB53D8B85289BCC48EE5BFE6F20137D10A087EB6E7871E2A10A599C7" +
				"10AF8D0D39E20611",
			"14FDD05545EC1CC8AB4093247F77275E0743FFED117182EAA9C77877AAAC6AC7" +
				"D35245D1692E8EE1",
			"D35E472036BC4FB7E13C785ED201E065F98FCFA5B68F12A32D482EC7EE8658E9" +
				"8691555B44C59311"),
		16: newECParameters("brainpoolP384r1",
			"8CB91E82A3386D280F5D6F7E50E641DF152F7109ED5456B412B1DA197FB71123" +
				"ACD3A729901D1A71874700133107EC53",
			"7BC382C63D8C150C3C72080ACE05AFA0C2BEA28E4FB22787139165EFBA91F90F" +
				"8AA5814A503AD4EB04A8C7DD22CE2826",
			"04A8C7DD22CE28268B39B55416F0447C2FB77DE107DCD2A62E880EA53EEB62D5" +
				"7CB4390295DBC9943AB78696FA504C11",
			"1D1C64F068CF45FFA2A63A81B7C13F6B8847A3E77EF14FE3DB7FCAFE0CBD10E8" +
				"E826E03436D646AAEF87B2E247D4AF1E",
			"8ABE1D7520F9C2A45CB1EB8E95CFD55262B70B29FEEC5864E19C054FF9912928" +
				"0E4646217791811142820341263C5315",
			"8CB91E82A3386D280F5D6F7E50E641DF152F7109ED5456B31F166E6CAC0425A7" +
				"CF3AB6AF6B7FC3103B883202E9046565"),
		17: newECParameters("brainpoolP512r1",
			"AADD9DB8DBE9C48B3FD4E6AE33C9FC07CB308DB3B3C9D20ED6639CCA70330871" +
				"7D4D9B009BC66842AECDA12AE6A380E62881FF2F2D82C68528AA6056583A48F3",
			"7830A3318B603B89E2327145AC234CC594CBDD8D3DF91610A83441CAEA9863BC" +
				"2DED5D5AA8253AA10A2EF1C98B9AC8B57F1117A72BF2C7B9E7C1AC4D77FC94CA",
			"3DF91610A83441CAEA9863BC2DED5D5AA8253AA10A2EF1C98B9AC8B57F1117A7" +
				"2BF2C7B9E7C1AC4D77FC94CADC083E67984050B75EBAE5DD2809BD638016F723",
			"81AEE4BDD82ED9645A21322E9C4C6A9385ED9F70B5D916C1B43B62EEF4D0098E" +
				"FF3B1F78E2D0D48D50D1687B93B97D5F7C6D5047406A5E688B352209BCB9F822",
			"7DDE385D566332ECC0EABFA9CF7822FDF209F70024A57B1AA000C55B881F8111" +
				"B2DCDE494A5F485E5BCA4BD88A2763AED1CA2B2FA8F0540678CD1E0F3AD80892",
			"AADD9DB8DBE9C48B3FD4E6AE33C9FC07CB308DB3B3C9D20ED6639CCA70330870" +
				"553E5C414CA92619418661197FAC10471DB1D381085DDADDB58796829CA90069"),
		10: fromCurveParams("secp224r1", elliptic.P224().Params()),
		12: fromCurveParams("secp256r1", elliptic.P256().Params()),
		15: fromCurveParams("secp384r1", elliptic.P384().Params()),
		18: fromCurveParams("secp521r1", elliptic.P521().Params()),
	}

	// Named curves as found in SubjectPublicKeyInfos
	namedCurves = map[string]int{
		"1.2.840.10045.3.1.1":   ParameterIDP192,
		"1.3.132.0.33":          ParameterIDP224,
		"1.2.840.10045.3.1.7":   ParameterIDP256,
		"1.3.132.0.34":          ParameterIDP384,
		"1.3.132.0.35":          ParameterIDP521,
		"1.3.36.3.3.2.8.1.1.3":  ParameterIDBP192,
		"1.3.36.3.3.2.8.1.1.5":  ParameterIDBP224,
		"1.3.36.3.3.2.8.1.1.7":  ParameterIDBP256,
		"1.3.36.3.3.2.8.1.1.9":  ParameterIDBP320,
		"1.3.36.3.3.2.8.1.1.11": ParameterIDBP384,
		"1.3.36.3.3.2.8.1.1.13": ParameterIDBP512,
	}
)

// StandardizedDomainParameters returns the domain parameters
// for a standardized parameter ID.
func StandardizedDomainParameters(id int) (DomainParameters, error) {
	params, ok := standardizedParameters[id]
	if !ok {
		return nil, fmt.Errorf("%w domain parameters: %d", ErrUnsupported, id)
	}

	return params, nil
}

// StandardizedParameterID returns the ID of standardized domain parameters
// or -1 if the parameters are not standardized.
func StandardizedParameterID(params DomainParameters) int {
	for id, std := range standardizedParameters {
		switch p := params.(type) {
		case *ECParameters:
			if s, ok := std.(*ECParameters); ok && p.Equal(s) {
				return id
			}

		case *DHParameters:
			if s, ok := std.(*DHParameters); ok && p.Equal(s) {
				return id
			}
		}
	}

	return -1
}

func namedCurve(oid asn1.ObjectIdentifier) (*ECParameters, error) {
	id, ok := namedCurves[oid.String()]
	if !ok {
		return nil, fmt.Errorf("%w curve: %s", ErrUnsupported, oid)
	}

	return standardizedParameters[id].(*ECParameters), nil //nolint:forcetypeassert
}

func newECParameters(name, p, a, b, gx, gy, n string) *ECParameters {
	return &ECParameters{
		Name:     name,
		P:        mustParseHex(p),
		A:        mustParseHex(a),
		B:        mustParseHex(b),
		Gx:       mustParseHex(gx),
		Gy:       mustParseHex(gy),
		N:        mustParseHex(n),
		Cofactor: big.NewInt(1),
	}
}

func fromCurveParams(name string, c *elliptic.CurveParams) *ECParameters {
	return &ECParameters{
		Name:     name,
		P:        c.P,
		A:        new(big.Int).Sub(c.P, big.NewInt(3)),
		B:        c.B,
		Gx:       c.Gx,
		Gy:       c.Gy,
		N:        c.N,
		Cofactor: big.NewInt(1),
	}
}

func newDHParameters(p, g, q string) *DHParameters {
	return &DHParameters{
		P: mustParseHex(p),
		G: mustParseHex(g),
		Q: mustParseHex(q),
	}
}

func mustParseHex(s string) *big.Int {
	i, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid constant")
	}

	return i
}
