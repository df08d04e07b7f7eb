package apdu

// Variant discriminators for the GET/SET/ACTION request and response
// families, carried as the second byte of the APDU right after the
// top-level CosemTag.

type GetRequestTag byte

const (
	GetRequestNormal   GetRequestTag = 0x1
	GetRequestNext     GetRequestTag = 0x2
	GetRequestWithList GetRequestTag = 0x3
)

type GetResponseTag byte

const (
	GetResponseNormal        GetResponseTag = 0x1
	GetResponseWithDataBlock GetResponseTag = 0x2
	GetResponseWithList      GetResponseTag = 0x3
)

type SetRequestTag byte

const (
	SetRequestNormal                    SetRequestTag = 0x1
	SetRequestWithFirstDataBlock        SetRequestTag = 0x2
	SetRequestWithDataBlock             SetRequestTag = 0x3
	SetRequestWithList                  SetRequestTag = 0x4
	SetRequestWithListAndFirstDataBlock SetRequestTag = 0x5
)

type SetResponseTag byte

const (
	SetResponseNormal                SetResponseTag = 0x1
	SetResponseDataBlock             SetResponseTag = 0x2
	SetResponseLastDataBlock         SetResponseTag = 0x3
	SetResponseLastDataBlockWithList SetResponseTag = 0x4
	SetResponseWithList              SetResponseTag = 0x5
)

type ActionRequestTag byte

const (
	ActionRequestNormal                 ActionRequestTag = 0x1
	ActionRequestNextPBlock             ActionRequestTag = 0x2
	ActionRequestWithList               ActionRequestTag = 0x3
	ActionRequestWithFirstPBlock        ActionRequestTag = 0x4
	ActionRequestWithListAndFirstPBlock ActionRequestTag = 0x5
	ActionRequestWithPBlock             ActionRequestTag = 0x6
)

type ActionResponseTag byte

const (
	ActionResponseNormal     ActionResponseTag = 0x1
	ActionResponseWithPBlock ActionResponseTag = 0x2
	ActionResponseWithList   ActionResponseTag = 0x3
	ActionResponseNextPBlock ActionResponseTag = 0x4
)
