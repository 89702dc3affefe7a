package transaction

// Type codes equal the field number of the operation inside the body's
// data one-of.
const (
	TypeUnknown                int32 = -1
	TypeContractCall           int32 = 7
	TypeContractCreate         int32 = 8
	TypeContractUpdate         int32 = 9
	TypeCryptoAddLiveHash      int32 = 10
	TypeCryptoCreateAccount    int32 = 11
	TypeCryptoDelete           int32 = 12
	TypeCryptoDeleteLiveHash   int32 = 13
	TypeCryptoTransfer         int32 = 14
	TypeCryptoUpdateAccount    int32 = 15
	TypeFileAppend             int32 = 16
	TypeFileCreate             int32 = 17
	TypeFileDelete             int32 = 18
	TypeFileUpdate             int32 = 19
	TypeSystemDelete           int32 = 20
	TypeSystemUndelete         int32 = 21
	TypeContractDelete         int32 = 22
	TypeFreeze                 int32 = 23
	TypeConsensusCreateTopic   int32 = 24
	TypeConsensusUpdateTopic   int32 = 25
	TypeConsensusDeleteTopic   int32 = 26
	TypeConsensusSubmitMessage int32 = 27
	TypeUncheckedSubmit        int32 = 28
	TypeTokenCreation          int32 = 29
	TypeTokenFreeze            int32 = 31
	TypeTokenUnfreeze          int32 = 32
	TypeTokenGrantKyc          int32 = 33
	TypeTokenRevokeKyc         int32 = 34
	TypeTokenDeletion          int32 = 35
	TypeTokenUpdate            int32 = 36
	TypeTokenMint              int32 = 37
	TypeTokenBurn              int32 = 38
	TypeTokenWipe              int32 = 39
	TypeTokenAssociate         int32 = 40
	TypeTokenDissociate        int32 = 41
	TypeScheduleCreate         int32 = 42
	TypeScheduleDelete         int32 = 43
	TypeScheduleSign           int32 = 44
	TypeTokenFeeScheduleUpdate int32 = 45
	TypeTokenPause             int32 = 46
	TypeTokenUnpause           int32 = 47
	TypeCryptoApproveAllowance int32 = 48
	TypeCryptoDeleteAllowance  int32 = 49
	TypeEthereumTransaction    int32 = 50
	TypeNodeStakeUpdate        int32 = 51
	TypeUtilPrng               int32 = 52
	TypeTokenUpdateNfts        int32 = 53
	TypeNodeCreate             int32 = 54
	TypeNodeUpdate             int32 = 55
	TypeNodeDelete             int32 = 56
	TypeTokenReject            int32 = 57
	TypeTokenAirdrop           int32 = 58
	TypeTokenCancelAirdrop     int32 = 59
	TypeTokenClaimAirdrop      int32 = 60
)

// EntityOperation is the lifecycle effect a transaction type has on the
// entity it targets.
type EntityOperation int

const (
	OperationNone EntityOperation = iota
	OperationCreate
	OperationUpdate
	OperationDelete
)

func (o EntityOperation) String() string {
	switch o {
	case OperationCreate:
		return "CREATE"
	case OperationUpdate:
		return "UPDATE"
	case OperationDelete:
		return "DELETE"
	default:
		return "NONE"
	}
}

type typeInfo struct {
	name string
	op   EntityOperation
}

var knownTypes = map[int32]typeInfo{
	TypeContractCall:           {"CONTRACTCALL", OperationNone},
	TypeContractCreate:         {"CONTRACTCREATEINSTANCE", OperationCreate},
	TypeContractUpdate:         {"CONTRACTUPDATEINSTANCE", OperationUpdate},
	TypeCryptoAddLiveHash:      {"CRYPTOADDLIVEHASH", OperationNone},
	TypeCryptoCreateAccount:    {"CRYPTOCREATEACCOUNT", OperationCreate},
	TypeCryptoDelete:           {"CRYPTODELETE", OperationDelete},
	TypeCryptoDeleteLiveHash:   {"CRYPTODELETELIVEHASH", OperationNone},
	TypeCryptoTransfer:         {"CRYPTOTRANSFER", OperationNone},
	TypeCryptoUpdateAccount:    {"CRYPTOUPDATEACCOUNT", OperationUpdate},
	TypeFileAppend:             {"FILEAPPEND", OperationNone},
	TypeFileCreate:             {"FILECREATE", OperationCreate},
	TypeFileDelete:             {"FILEDELETE", OperationDelete},
	TypeFileUpdate:             {"FILEUPDATE", OperationUpdate},
	TypeSystemDelete:           {"SYSTEMDELETE", OperationDelete},
	TypeSystemUndelete:         {"SYSTEMUNDELETE", OperationUpdate},
	TypeContractDelete:         {"CONTRACTDELETEINSTANCE", OperationDelete},
	TypeFreeze:                 {"FREEZE", OperationNone},
	TypeConsensusCreateTopic:   {"CONSENSUSCREATETOPIC", OperationCreate},
	TypeConsensusUpdateTopic:   {"CONSENSUSUPDATETOPIC", OperationUpdate},
	TypeConsensusDeleteTopic:   {"CONSENSUSDELETETOPIC", OperationDelete},
	TypeConsensusSubmitMessage: {"CONSENSUSSUBMITMESSAGE", OperationNone},
	TypeUncheckedSubmit:        {"UNCHECKEDSUBMIT", OperationNone},
	TypeTokenCreation:          {"TOKENCREATION", OperationCreate},
	TypeTokenFreeze:            {"TOKENFREEZE", OperationNone},
	TypeTokenUnfreeze:          {"TOKENUNFREEZE", OperationNone},
	TypeTokenGrantKyc:          {"TOKENGRANTKYC", OperationNone},
	TypeTokenRevokeKyc:         {"TOKENREVOKEKYC", OperationNone},
	TypeTokenDeletion:          {"TOKENDELETION", OperationDelete},
	TypeTokenUpdate:            {"TOKENUPDATE", OperationUpdate},
	TypeTokenMint:              {"TOKENMINT", OperationNone},
	TypeTokenBurn:              {"TOKENBURN", OperationNone},
	TypeTokenWipe:              {"TOKENWIPE", OperationNone},
	TypeTokenAssociate:         {"TOKENASSOCIATE", OperationNone},
	TypeTokenDissociate:        {"TOKENDISSOCIATE", OperationNone},
	TypeScheduleCreate:         {"SCHEDULECREATE", OperationCreate},
	TypeScheduleDelete:         {"SCHEDULEDELETE", OperationDelete},
	TypeScheduleSign:           {"SCHEDULESIGN", OperationNone},
	TypeTokenFeeScheduleUpdate: {"TOKENFEESCHEDULEUPDATE", OperationNone},
	TypeTokenPause:             {"TOKENPAUSE", OperationNone},
	TypeTokenUnpause:           {"TOKENUNPAUSE", OperationNone},
	TypeCryptoApproveAllowance: {"CRYPTOAPPROVEALLOWANCE", OperationNone},
	TypeCryptoDeleteAllowance:  {"CRYPTODELETEALLOWANCE", OperationNone},
	TypeEthereumTransaction:    {"ETHEREUMTRANSACTION", OperationNone},
	TypeNodeStakeUpdate:        {"NODESTAKEUPDATE", OperationNone},
	TypeUtilPrng:               {"UTILPRNG", OperationNone},
	TypeTokenUpdateNfts:        {"TOKENUPDATENFTS", OperationNone},
	TypeNodeCreate:             {"NODECREATE", OperationCreate},
	TypeNodeUpdate:             {"NODEUPDATE", OperationUpdate},
	TypeNodeDelete:             {"NODEDELETE", OperationDelete},
	TypeTokenReject:            {"TOKENREJECT", OperationNone},
	TypeTokenAirdrop:           {"TOKENAIRDROP", OperationNone},
	TypeTokenCancelAirdrop:     {"TOKENCANCELAIRDROP", OperationNone},
	TypeTokenClaimAirdrop:      {"TOKENCLAIMAIRDROP", OperationNone},
}

// IsKnownType reports whether code names an operation this build knows.
func IsKnownType(code int32) bool {
	_, ok := knownTypes[code]
	return ok
}

// TypeName returns the canonical name of a type code, or "UNKNOWN".
func TypeName(code int32) string {
	if info, ok := knownTypes[code]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// EntityOperationOf maps a type code to its entity lifecycle effect.
// Unknown codes map to OperationNone.
func EntityOperationOf(code int32) EntityOperation {
	return knownTypes[code].op
}
