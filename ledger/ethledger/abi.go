package ethledger

// ProofRegistryABI is the interface of the ProofRegistry contract: the on-chain
// deployment of the registry state machine plus its ERC-721 enumeration surface.
const ProofRegistryABI = `[
  {"type":"function","name":"submitProof","stateMutability":"nonpayable",
   "inputs":[{"name":"eventId","type":"string"},{"name":"proofData","type":"bytes"}],
   "outputs":[{"name":"proofId","type":"uint256"}]},
  {"type":"function","name":"validateProof","stateMutability":"nonpayable",
   "inputs":[{"name":"proofId","type":"uint256"},{"name":"isValid","type":"bool"}],
   "outputs":[]},
  {"type":"function","name":"setEventMetadata","stateMutability":"nonpayable",
   "inputs":[{"name":"eventId","type":"string"},{"name":"name","type":"string"},{"name":"description","type":"string"},
             {"name":"imageURI","type":"string"},{"name":"location","type":"string"},{"name":"eventDate","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"getProof","stateMutability":"view",
   "inputs":[{"name":"proofId","type":"uint256"}],
   "outputs":[{"name":"commitment","type":"bytes32"},{"name":"eventId","type":"string"},{"name":"submitter","type":"address"},
              {"name":"timestamp","type":"uint256"},{"name":"isValid","type":"bool"},{"name":"tokenId","type":"uint256"}]},
  {"type":"function","name":"getUserProofs","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getEventProofs","stateMutability":"view",
   "inputs":[{"name":"eventId","type":"string"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getTotalProofs","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"hasValidProofForEvent","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"},{"name":"eventId","type":"string"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getEventMetadata","stateMutability":"view",
   "inputs":[{"name":"eventId","type":"string"}],
   "outputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"imageURI","type":"string"},
              {"name":"location","type":"string"},{"name":"eventDate","type":"string"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"ProofSubmitted","anonymous":false,
   "inputs":[{"name":"proofId","type":"uint256","indexed":true},{"name":"commitment","type":"bytes32","indexed":true},
             {"name":"eventId","type":"string","indexed":false},{"name":"submitter","type":"address","indexed":true}]},
  {"type":"event","name":"ProofValidated","anonymous":false,
   "inputs":[{"name":"proofId","type":"uint256","indexed":true},{"name":"isValid","type":"bool","indexed":false},
             {"name":"validator","type":"address","indexed":true}]},
  {"type":"event","name":"CredentialMinted","anonymous":false,
   "inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"proofId","type":"uint256","indexed":true},
             {"name":"owner","type":"address","indexed":true},{"name":"eventId","type":"string","indexed":false},
             {"name":"metadataRef","type":"string","indexed":false}]},
  {"type":"event","name":"EventMetadataSet","anonymous":false,
   "inputs":[{"name":"eventId","type":"string","indexed":false},{"name":"setter","type":"address","indexed":true}]}
]`
