package protocol

// IkeExchangeType identifies the exchange a message belongs to (RFC 7296 §3.1).
type IkeExchangeType uint8

const (
	IKE_SA_INIT        IkeExchangeType = 34
	IKE_AUTH           IkeExchangeType = 35
	CREATE_CHILD_SA    IkeExchangeType = 36
	INFORMATIONAL      IkeExchangeType = 37
	IKE_SESSION_RESUME IkeExchangeType = 38
	// RFC 9242: an intermediate exchange runs between IKE_SA_INIT and IKE_AUTH
	// when additional key exchanges are negotiated.
	IKE_INTERMEDIATE IkeExchangeType = 43
	// RFC 9370: one follow-up exchange per additional key exchange method.
	IKE_FOLLOWUP_KE IkeExchangeType = 44
)

type TransformType uint8

const (
	TRANSFORM_TYPE_ENCR  TransformType = 1
	TRANSFORM_TYPE_PRF   TransformType = 2
	TRANSFORM_TYPE_INTEG TransformType = 3
	TRANSFORM_TYPE_DH    TransformType = 4
	TRANSFORM_TYPE_ESN   TransformType = 5
	// RFC 9370 introduces additional key exchange transform types, one per
	// slot, so a proposal can require more than one non-DH key exchange.
	TRANSFORM_TYPE_ADDKE1 TransformType = 6
	TRANSFORM_TYPE_ADDKE2 TransformType = 7
	TRANSFORM_TYPE_ADDKE3 TransformType = 8
	TRANSFORM_TYPE_ADDKE4 TransformType = 9
	TRANSFORM_TYPE_ADDKE5 TransformType = 10
	TRANSFORM_TYPE_ADDKE6 TransformType = 11
	TRANSFORM_TYPE_ADDKE7 TransformType = 12
)

type EncrTransformId uint16

const (
	ENCR_DES_IV64           EncrTransformId = 1
	ENCR_DES                EncrTransformId = 2
	ENCR_3DES               EncrTransformId = 3
	ENCR_RC5                EncrTransformId = 4
	ENCR_IDEA               EncrTransformId = 5
	ENCR_CAST               EncrTransformId = 6
	ENCR_BLOWFISH           EncrTransformId = 7
	ENCR_3IDEA              EncrTransformId = 8
	ENCR_DES_IV32           EncrTransformId = 9
	ENCR_NULL               EncrTransformId = 11
	ENCR_AES_CBC            EncrTransformId = 12
	ENCR_AES_CTR            EncrTransformId = 13
	ENCR_AES_CCM_8          EncrTransformId = 14
	ENCR_AES_CCM_12         EncrTransformId = 15
	ENCR_AES_CCM_16         EncrTransformId = 16
	AEAD_AES_GCM_8          EncrTransformId = 18
	AEAD_AES_GCM_12         EncrTransformId = 19
	AEAD_AES_GCM_16         EncrTransformId = 20
	ENCR_NULL_AUTH_AES_GMAC EncrTransformId = 21
	ENCR_CAMELLIA_CBC       EncrTransformId = 23
	ENCR_CAMELLIA_CTR       EncrTransformId = 24
)

type PrfTransformId uint16

const (
	PRF_HMAC_MD5      PrfTransformId = 1
	PRF_HMAC_SHA1     PrfTransformId = 2
	PRF_HMAC_TIGER    PrfTransformId = 3
	PRF_AES128_XCBC   PrfTransformId = 4
	PRF_HMAC_SHA2_256 PrfTransformId = 5
	PRF_HMAC_SHA2_384 PrfTransformId = 6
	PRF_HMAC_SHA2_512 PrfTransformId = 7
	PRF_AES128_CMAC   PrfTransformId = 8
)

type AuthTransformId uint16

const (
	AUTH_NONE              AuthTransformId = 0
	AUTH_HMAC_MD5_96       AuthTransformId = 1
	AUTH_HMAC_SHA1_96      AuthTransformId = 2
	AUTH_DES_MAC           AuthTransformId = 3
	AUTH_KPDK_MD5          AuthTransformId = 4
	AUTH_AES_XCBC_96       AuthTransformId = 5
	AUTH_HMAC_MD5_128      AuthTransformId = 6
	AUTH_HMAC_SHA1_160     AuthTransformId = 7
	AUTH_AES_CMAC_96       AuthTransformId = 8
	AUTH_AES_128_GMAC      AuthTransformId = 9
	AUTH_AES_192_GMAC      AuthTransformId = 10
	AUTH_AES_256_GMAC      AuthTransformId = 11
	AUTH_HMAC_SHA2_256_128 AuthTransformId = 12
	AUTH_HMAC_SHA2_384_192 AuthTransformId = 13
	AUTH_HMAC_SHA2_512_256 AuthTransformId = 14
)

type DhTransformId uint16

const (
	MODP_NONE           DhTransformId = 0
	MODP_768            DhTransformId = 1
	MODP_1024           DhTransformId = 2
	MODP_1536           DhTransformId = 5
	MODP_2048           DhTransformId = 14
	MODP_3072           DhTransformId = 15
	MODP_4096           DhTransformId = 16
	MODP_6144           DhTransformId = 17
	MODP_8192           DhTransformId = 18
	ECP_256             DhTransformId = 19
	ECP_384             DhTransformId = 20
	ECP_521             DhTransformId = 21
	MODP_1024_PRIME_160 DhTransformId = 22
	MODP_2048_PRIME_224 DhTransformId = 23
	MODP_2048_PRIME_256 DhTransformId = 24
	ECP_192             DhTransformId = 25
	ECP_224             DhTransformId = 26
	CURVE_25519         DhTransformId = 31 // RFC 8031
	CURVE_448           DhTransformId = 32 // RFC 8031
)

type EsnTransformId uint16

const (
	ESN_NONE EsnTransformId = 0
	ESN      EsnTransformId = 1
)

type HashAlgorithmId uint16

const (
	HASH_RESERVED   HashAlgorithmId = 0
	HASH_SHA1       HashAlgorithmId = 1
	HASH_SHA2_256   HashAlgorithmId = 2
	HASH_SHA2_384   HashAlgorithmId = 3
	HASH_SHA2_512   HashAlgorithmId = 4
)

// NotificationType is the 16-bit Notify Message Type field (RFC 7296 §3.10.1).
type NotificationType uint16

const (
	// error types: carried in a response to abort the exchange.
	UNSUPPORTED_CRITICAL_PAYLOAD NotificationType = 1
	INVALID_IKE_SPI              NotificationType = 4
	INVALID_MAJOR_VERSION        NotificationType = 5
	INVALID_SYNTAX               NotificationType = 7
	INVALID_MESSAGE_ID           NotificationType = 9
	INVALID_SPI                  NotificationType = 11
	NO_PROPOSAL_CHOSEN           NotificationType = 14
	INVALID_KE_PAYLOAD           NotificationType = 17
	AUTHENTICATION_FAILED        NotificationType = 24
	SINGLE_PAIR_REQUIRED         NotificationType = 34
	NO_ADDITIONAL_SAS            NotificationType = 35
	INTERNAL_ADDRESS_FAILURE     NotificationType = 36
	FAILED_CP_REQUIRED           NotificationType = 37
	TS_UNACCEPTABLE              NotificationType = 38
	INVALID_SELECTORS            NotificationType = 39
	TEMPORARY_FAILURE            NotificationType = 43
	CHILD_SA_NOT_FOUND           NotificationType = 44

	// status types: informational, carried alongside a successful exchange.
	INITIAL_CONTACT                    NotificationType = 16384
	SET_WINDOW_SIZE                    NotificationType = 16385
	ADDITIONAL_TS_POSSIBLE             NotificationType = 16386
	IPCOMP_SUPPORTED                   NotificationType = 16387
	NAT_DETECTION_SOURCE_IP            NotificationType = 16388
	NAT_DETECTION_DESTINATION_IP       NotificationType = 16389
	COOKIE                             NotificationType = 16390
	USE_TRANSPORT_MODE                 NotificationType = 16391
	HTTP_CERT_LOOKUP_SUPPORTED         NotificationType = 16392
	REKEY_SA                           NotificationType = 16393
	ESP_TFC_PADDING_NOT_SUPPORTED      NotificationType = 16394
	NON_FIRST_FRAGMENTS_ALSO           NotificationType = 16395
	MOBIKE_SUPPORTED                   NotificationType = 16396
	ADDITIONAL_IP4_ADDRESS             NotificationType = 16397
	ADDITIONAL_IP6_ADDRESS             NotificationType = 16398
	NO_ADDITIONAL_ADDRESSES            NotificationType = 16399
	UPDATE_SA_ADDRESSES                NotificationType = 16400
	COOKIE2                            NotificationType = 16401
	NO_NATS_ALLOWED                    NotificationType = 16402
	AUTH_LIFETIME                      NotificationType = 16403
	MULTIPLE_AUTH_SUPPORTED            NotificationType = 16404
	ANOTHER_AUTH_FOLLOWS               NotificationType = 16405
	REDIRECT_SUPPORTED                 NotificationType = 16406
	REDIRECT                           NotificationType = 16407
	REDIRECTED_FROM                    NotificationType = 16408
	TICKET_LT_OPAQUE                   NotificationType = 16409
	TICKET_REQUEST                     NotificationType = 16410
	TICKET_ACK                         NotificationType = 16411
	TICKET_NACK                        NotificationType = 16412
	TICKET_OPAQUE                      NotificationType = 16413
	LINK_ID                            NotificationType = 16414
	USE_WESP_MODE                      NotificationType = 16415
	ROHC_SUPPORTED                     NotificationType = 16416
	EAP_ONLY_AUTHENTICATION            NotificationType = 16417
	CHILDLESS_IKEV2_SUPPORTED          NotificationType = 16418
	QUICK_CRASH_DETECTION              NotificationType = 16419
	IKEV2_MESSAGE_ID_SYNC_SUPPORTED    NotificationType = 16420
	IPSEC_REPLAY_COUNTER_SYNC_SUPPORTED NotificationType = 16421
	IKEV2_MESSAGE_ID_SYNC              NotificationType = 16422
	IPSEC_REPLAY_COUNTER_SYNC          NotificationType = 16423
	SECURE_PASSWORD_METHOD             NotificationType = 16424
	PSK_PERSIST                        NotificationType = 16425
	PSK_CONFIRM                        NotificationType = 16426
	ERX_SUPPORTED                      NotificationType = 16427
	IFOM_CAPABILITY                    NotificationType = 16428
	SENDER_REQUEST_ID                  NotificationType = 16429
	FRAGMENTATION_SUPPORTED            NotificationType = 16430 // RFC 7383
	SIGNATURE_HASH_ALGORITHMS          NotificationType = 16431 // RFC 7427

	// RFC 8784 (post-quantum preshared key)
	USE_PPK     NotificationType = 16435
	PPK_IDENTITY NotificationType = 16436
	NO_PPK_AUTH  NotificationType = 16437

	// RFC 9242 (intermediate exchange) / RFC 9370 (multiple key exchanges)
	INTERMEDIATE_EXCHANGE_SUPPORTED NotificationType = 16441
	ADDITIONAL_KEY_EXCHANGE         NotificationType = 16442

	// vendor-private status, not in the IANA registry; no code in this
	// module builds or parses it.
	ME_CONNECTID NotificationType = 40301
)
